package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kaptinlin/jsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON []byte

// Config represents the application configuration
type Config struct {
	Endpoints    []Endpoint `yaml:"endpoints"`
	LogLevel     string     `yaml:"log_level"`
	Output       string     `yaml:"output"`
	Jobs         int        `yaml:"jobs"`
	JournalPath  string     `yaml:"journal_path"`
	WebhookURLs  []string   `yaml:"webhook_urls"`
	PolicySuffix string     `yaml:"policy_suffix"`
	TaskPrefix   string     `yaml:"task_prefix"`

	// Path is the file the configuration was read from, empty when none was found
	Path string `yaml:"-"`
}

// Load loads configuration from multiple sources with precedence:
// 1. Environment variables
// 2. ./.env.local (dotenv) - walks up parent directories to find it
// 3. the YAML file: path, $AIOMIGRATE_CONFIG, ./config.yaml or
// ~/.config/aiomigrate/config.yaml, first found
//
// An explicit path that cannot be read is an error; otherwise a missing
// file leaves the defaults in place.
func Load(path string) (*Config, error) {
	cfg := &Config{
		LogLevel: "info",
		Output:   "table",
		Jobs:     4,
	}

	// Load .env.local first so it can supply AIOMIGRATE_CONFIG and api keys
	if envPath := findEnvLocal(); envPath != "" {
		_ = godotenv.Load(envPath)
	}

	explicit := path != ""
	if !explicit {
		path = os.Getenv("AIOMIGRATE_CONFIG")
		explicit = path != ""
	}
	if !explicit {
		path = findConfigFile()
	}
	if path != "" {
		if err := loadYAMLConfig(cfg, path); err != nil {
			if explicit || !os.IsNotExist(err) {
				return nil, err
			}
		} else {
			cfg.Path = path
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if cfg.JournalPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.JournalPath = filepath.Join(homeDir, ".local", "share", "aiomigrate", "journal.db")
	}

	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if logLevel := os.Getenv("AIOMIGRATE_LOG_LEVEL"); logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if output := os.Getenv("AIOMIGRATE_OUTPUT"); output != "" {
		switch output {
		case "table", "json", "yaml":
			cfg.Output = output
		default:
			return fmt.Errorf("invalid AIOMIGRATE_OUTPUT %q: must be one of: table, json, yaml", output)
		}
	}
	if jobs := os.Getenv("AIOMIGRATE_JOBS"); jobs != "" {
		n, err := strconv.Atoi(jobs)
		if err != nil || n < 1 {
			return fmt.Errorf("invalid AIOMIGRATE_JOBS %q: must be a positive integer", jobs)
		}
		cfg.Jobs = n
	}
	if journalPath := getEnvOrFile("AIOMIGRATE_JOURNAL_PATH", "AIOMIGRATE_JOURNAL_PATH_FILE"); journalPath != "" {
		cfg.JournalPath = journalPath
	}
	if suffix, ok := os.LookupEnv("AIOMIGRATE_POLICY_SUFFIX"); ok {
		cfg.PolicySuffix = suffix
	}
	if prefix, ok := os.LookupEnv("AIOMIGRATE_TASK_PREFIX"); ok {
		cfg.TaskPrefix = prefix
	}
	return nil
}

// loadYAMLConfig validates the file against the embedded schema and decodes it
func loadYAMLConfig(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if doc == nil {
		return nil
	}
	if err := validate(doc); err != nil {
		return fmt.Errorf("invalid config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	return nil
}

func validate(doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("config is not representable as JSON: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile(schemaJSON)
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	result := schema.ValidateJSON(data)
	if result.IsValid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors))
	for field, e := range result.Errors {
		msgs = append(msgs, fmt.Sprintf("%v: %v", field, e))
	}
	sort.Strings(msgs)
	return fmt.Errorf("schema validation failed: %s", strings.Join(msgs, "; "))
}

func findConfigFile() string {
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(homeDir, ".config", "aiomigrate", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}

// getEnvOrFile gets an environment variable value, or reads it from a file
// if the _FILE variant is set
func getEnvOrFile(envVar, fileVar string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}

	if filePath := os.Getenv(fileVar); filePath != "" {
		data, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(data))
		}
	}

	return ""
}

// findEnvLocal searches for .env.local starting from cwd and walking up
// parent directories. Stops at the user's home directory.
func findEnvLocal() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		if _, err := os.Stat(".env.local"); err == nil {
			return ".env.local"
		}
		return ""
	}

	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	homeDir = filepath.Clean(homeDir)
	dir := filepath.Clean(cwd)

	for {
		envPath := filepath.Join(dir, ".env.local")
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
		if dir == homeDir {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}
