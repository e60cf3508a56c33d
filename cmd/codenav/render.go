package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/seanblong/codenav/pkg/models"
)

func renderAnswer(w io.Writer, a models.Answer) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Retrieved %d chunk(s)", len(a.Results))))
	if len(a.Results) == 0 {
		fmt.Fprintln(w, warnStyle.Render("No code was retrieved; the prompt has an empty context."))
	}
	for i, r := range a.Results {
		loc := fmt.Sprintf("%d. %s:%d-%d", i+1, r.Chunk.Path, r.Chunk.StartLine, r.Chunk.EndLine)
		if r.Chunk.Symbol != "" {
			loc += " " + r.Chunk.Symbol
		}
		fmt.Fprintf(w, "%s %s\n", loc, dimStyle.Render(fmt.Sprintf("score %.3f", r.Score)))
	}
	if a.Context != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, subtitleStyle.Render("Compressed context"))
		fmt.Fprintln(w, codeBoxStyle.Render(a.Context))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, subtitleStyle.Render("Prompt"))
	fmt.Fprintln(w, strings.TrimRight(a.Prompt, "\n"))
}

func renderImpact(w io.Writer, r models.ImpactReport) {
	fmt.Fprintln(w, titleStyle.Render("Impact of "+r.Symbol))
	if len(r.Findings) == 0 {
		fmt.Fprintln(w, successStyle.Render(r.Explanation))
		return
	}
	for _, f := range r.Findings {
		kind := string(f.Kind)
		if f.Kind == models.FindingDefinition {
			kind = warnStyle.Render(kind)
		}
		detail := ""
		if f.Detail != "" {
			detail = " " + dimStyle.Render("("+f.Detail+")")
		}
		fmt.Fprintf(w, "%s:%d %s%s\n", f.Path, f.Line, kind, detail)
		if f.Text != "" {
			fmt.Fprintln(w, "    "+dimStyle.Render(strings.TrimSpace(f.Text)))
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, subtitleStyle.Render(fmt.Sprintf("Impacted files (%d): %s", len(r.ImpactedFiles), strings.Join(r.ImpactedFiles, ", "))))
	fmt.Fprintln(w, r.Explanation)
}
