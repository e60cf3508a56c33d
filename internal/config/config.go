package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type Specification struct {
	Provider         string            `yaml:"provider"`
	APIKey           string            `yaml:"providerApiKey" envconfig:"PROVIDER_API_KEY"`
	EmbedModel       string            `yaml:"providerEmbedModel" envconfig:"PROVIDER_EMBEDDING_MODEL"`
	ProjectID        string            `yaml:"providerProjectID" envconfig:"PROVIDER_PROJECT_ID"`
	Location         string            `yaml:"providerLocation" envconfig:"PROVIDER_LOCATION"`
	ProviderURL      string            `yaml:"providerURL" envconfig:"PROVIDER_URL"`
	Dim              int               `yaml:"providerDim" envconfig:"EMBED_DIM"`
	BatchSize        int               `yaml:"batchSize" split_words:"true"`
	BatchMaxChars    int               `yaml:"batchMaxChars" split_words:"true"`
	EmbedConcurrency int               `yaml:"embedConcurrency" split_words:"true"`
	IndexBackend     string            `yaml:"indexBackend" split_words:"true"`
	Database         string            `yaml:"database" envconfig:"DB_URL"`
	HNSWThreshold    int               `yaml:"hnswThreshold" envconfig:"HNSW_THRESHOLD"`
	Extensions       []string          `yaml:"extensions"`
	MaxFileBytes     int64             `yaml:"maxFileBytes" split_words:"true"`
	WindowLines      int               `yaml:"windowLines" split_words:"true"`
	MaxContextChars  int               `yaml:"maxContextChars" split_words:"true"`
	TemplatesFile    string            `yaml:"templatesFile" split_words:"true"`
	TopK             int               `yaml:"topK" envconfig:"TOP_K"`
	GithubToken      string            `yaml:"githubToken" envconfig:"GITHUB_TOKEN"`
	GitRef           string            `yaml:"gitRef" split_words:"true"`
	LogLevel         string            `yaml:"logLevel" split_words:"true"`
	Port             int               `yaml:"port" split_words:"true"`
	CORSOrigin       string            `yaml:"corsOrigin" envconfig:"CORS_ORIGIN"`
	Auth             AuthSpecification `yaml:"auth"`

	flags *pflag.FlagSet `ignored:"true"`
}

type AuthSpecification struct {
	Enabled   bool          `yaml:"enabled"`
	JwtSecret string        `yaml:"jwtSecret" split_words:"true"`
	Issuer    string        `yaml:"issuer"`
	TokenTTL  time.Duration `yaml:"tokenTTL" envconfig:"TOKEN_TTL"`
}

const envPrefix = "CODENAV"

func (s *Specification) Usage() {
	fmt.Fprint(os.Stderr, s.flags.FlagUsages())
}

// BindFlags registers every configuration flag on fs with its default value.
// Load does this itself when fs has no flags yet; callers that parse fs
// before loading (cobra) bind first.
func BindFlags(fs *pflag.FlagSet) {
	var cfg Specification
	setDefaults(&cfg)
	bindFlags(fs, &cfg)
}

// Load => defaults < YAML < env < flags.
// configPath may be ""; if so we auto-discover.
func Load(configPath string, fs *pflag.FlagSet) (Specification, error) {
	var cfg Specification

	// set defaults (lowest precedence)
	setDefaults(&cfg)
	if fs.Lookup("provider") == nil {
		bindFlags(fs, &cfg)
	}
	cfg.flags = fs
	captureConfigFlag(os.Args)

	// config file
	path := configPath
	if path == "" {
		if v := os.Getenv(envPrefix + "_CONFIG"); v != "" {
			path = v
		} else {
			for _, cand := range []string{
				"config/codenav.yaml",
				"config/config.yaml",
				"./codenav.yaml",
				"./config.yaml",
			} {
				if fileExists(cand) {
					path = cand
					break
				}
			}
		}
	}

	if path != "" {
		if !fileExists(path) {
			return Specification{}, fmt.Errorf("config file not found: %s", path)
		}
		if err := loadYAML(path, &cfg); err != nil {
			return Specification{}, fmt.Errorf("load yaml %s: %w", path, err)
		}
	}

	// env overrides config file
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Specification{}, fmt.Errorf("env override: %w", err)
	}

	// flags override everything
	if !fs.Parsed() {
		if err := fs.Parse(os.Args[1:]); err != nil {
			return Specification{}, err
		}
	}
	applyChangedFlags(fs, &cfg)

	if err := cfg.validate(); err != nil {
		return Specification{}, err
	}
	return cfg, nil
}

func (s *Specification) validate() error {
	if strings.TrimSpace(s.LogLevel) == "" {
		s.LogLevel = "info"
	}
	if s.IndexBackend == "pgvector" && strings.TrimSpace(s.Database) == "" {
		return fmt.Errorf("%s_DB_URL is required for the pgvector backend (env/file/flag)", envPrefix)
	}
	if s.Auth.Enabled && strings.TrimSpace(s.Auth.JwtSecret) == "" {
		return fmt.Errorf("%s_AUTH_JWT_SECRET is required when auth is enabled", envPrefix)
	}
	for i, e := range s.Extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" && !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		s.Extensions[i] = e
	}
	if s.WindowLines < 0 || s.MaxContextChars < 0 || s.BatchSize < 0 {
		return fmt.Errorf("windowLines, maxContextChars and batchSize must not be negative")
	}
	return nil
}

// ---------- helpers ----------

func loadYAML(path string, into any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, into)
}

func fileExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}

// captureConfigFlag makes --config visible to discovery, which runs before
// the flags are parsed.
func captureConfigFlag(args []string) {
	for i, a := range args {
		if a == "--config" {
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				_ = os.Setenv(envPrefix+"_CONFIG", args[i+1])
			}
		} else if strings.HasPrefix(a, "--config=") {
			parts := strings.SplitN(a, "=", 2)
			if len(parts) == 2 {
				_ = os.Setenv(envPrefix+"_CONFIG", parts[1])
			}
		}
	}
}

func bindFlags(fs *pflag.FlagSet, c *Specification) {
	fs.String("config", "", "Path to config file")

	fs.String("provider", c.Provider, "Embedding provider (stub, openai, vertexai, ollama)")
	fs.String("provider-api-key", c.APIKey, "Provider API key")
	fs.String("provider-embedding-model", c.EmbedModel, "Provider embedding model")
	fs.String("provider-project-id", c.ProjectID, "Provider project ID")
	fs.String("provider-location", c.Location, "Provider location/region")
	fs.String("provider-url", c.ProviderURL, "Provider base URL (openai-compatible or ollama)")
	fs.Int("embed-dim", c.Dim, "Embedding dimensionality")
	fs.Int("batch-size", c.BatchSize, "Maximum texts per embedding request")
	fs.Int("batch-max-chars", c.BatchMaxChars, "Maximum characters per embedding request")
	fs.Int("embed-concurrency", c.EmbedConcurrency, "Concurrent embedding requests")

	fs.String("index-backend", c.IndexBackend, "Vector index backend (sqlitevec, pgvector, bruteforce)")
	fs.String("db-url", c.Database, "Database URL (DSN) for the pgvector backend")
	fs.Int("hnsw-threshold", c.HNSWThreshold, "Row count from which pgvector builds an HNSW index (0 disables)")

	fs.StringSlice("extensions", c.Extensions, "File extensions to ingest")
	fs.Int64("max-file-bytes", c.MaxFileBytes, "Skip files larger than this")
	fs.Int("window-lines", c.WindowLines, "Lines per fallback chunk")
	fs.Int("max-context-chars", c.MaxContextChars, "Budget for the compressed context in a prompt")
	fs.String("templates-file", c.TemplatesFile, "YAML file overriding the prompt templates")
	fs.Int("top-k", c.TopK, "Default number of chunks retrieved per question")

	fs.String("github-token", c.GithubToken, "GitHub API token")
	fs.String("git-ref", c.GitRef, "Git reference (branch/tag) to clone")

	fs.String("log-level", c.LogLevel, "Log level (debug|info|warn|error)")
	fs.Int("port", c.Port, "API server port")
	fs.String("cors-origin", c.CORSOrigin, "Allowed CORS origin for the API")

	fs.Bool("auth-enabled", c.Auth.Enabled, "Require a bearer token on mutating endpoints")
	fs.String("auth-jwt-secret", c.Auth.JwtSecret, "JWT secret for signing tokens")
	fs.String("auth-issuer", c.Auth.Issuer, "JWT issuer")
	fs.Duration("auth-token-ttl", c.Auth.TokenTTL, "Lifetime of issued tokens")
}

func applyChangedFlags(fs *pflag.FlagSet, c *Specification) {
	setStr := func(name string, dst *string) {
		if fs.Changed(name) {
			v, _ := fs.GetString(name)
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if fs.Changed(name) {
			v, _ := fs.GetInt(name)
			*dst = v
		}
	}
	setBool := func(name string, dst *bool) {
		if fs.Changed(name) {
			v, _ := fs.GetBool(name)
			*dst = v
		}
	}

	// (We ignore --config here; it's for discovery.)
	setStr("provider", &c.Provider)
	setStr("provider-api-key", &c.APIKey)
	setStr("provider-embedding-model", &c.EmbedModel)
	setStr("provider-project-id", &c.ProjectID)
	setStr("provider-location", &c.Location)
	setStr("provider-url", &c.ProviderURL)
	setInt("embed-dim", &c.Dim)
	setInt("batch-size", &c.BatchSize)
	setInt("batch-max-chars", &c.BatchMaxChars)
	setInt("embed-concurrency", &c.EmbedConcurrency)

	setStr("index-backend", &c.IndexBackend)
	setStr("db-url", &c.Database)
	setInt("hnsw-threshold", &c.HNSWThreshold)

	if fs.Changed("extensions") {
		c.Extensions, _ = fs.GetStringSlice("extensions")
	}
	if fs.Changed("max-file-bytes") {
		c.MaxFileBytes, _ = fs.GetInt64("max-file-bytes")
	}
	setInt("window-lines", &c.WindowLines)
	setInt("max-context-chars", &c.MaxContextChars)
	setStr("templates-file", &c.TemplatesFile)
	setInt("top-k", &c.TopK)

	setStr("github-token", &c.GithubToken)
	setStr("git-ref", &c.GitRef)

	setStr("log-level", &c.LogLevel)
	setInt("port", &c.Port)
	setStr("cors-origin", &c.CORSOrigin)

	// Auth flags
	setBool("auth-enabled", &c.Auth.Enabled)
	setStr("auth-jwt-secret", &c.Auth.JwtSecret)
	setStr("auth-issuer", &c.Auth.Issuer)
	if fs.Changed("auth-token-ttl") {
		c.Auth.TokenTTL, _ = fs.GetDuration("auth-token-ttl")
	}
}

func setDefaults(c *Specification) {
	c.Provider = "stub"
	c.Location = "us-central1"
	c.Dim = 0
	c.BatchSize = 64
	c.BatchMaxChars = 100000
	c.EmbedConcurrency = 4
	c.IndexBackend = "sqlitevec"
	c.HNSWThreshold = 10000
	c.Extensions = []string{".py", ".java", ".js"}
	c.MaxFileBytes = 1 << 20
	c.WindowLines = 50
	c.MaxContextChars = 6000
	c.TopK = 5
	c.LogLevel = "info"
	c.Port = 8080
	c.CORSOrigin = "http://localhost:3000"
	c.Auth.Enabled = false
	c.Auth.Issuer = "codenav"
	c.Auth.TokenTTL = 24 * time.Hour
}
