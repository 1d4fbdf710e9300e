package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lherron/aiomigrate/internal/connector"
)

const defaultMaxRetries = 3

// Endpoint is one configured source or target
type Endpoint struct {
	Name          string `yaml:"name"`
	Type          string `yaml:"type"`
	URL           string `yaml:"url"`
	Region        string `yaml:"region"`
	APIKey        string `yaml:"api_key"`
	APIKeyEnv     string `yaml:"api_key_env"`
	APIKeyFile    string `yaml:"api_key_file"`
	TLSSkipVerify bool   `yaml:"tls_skip_verify"`
	Timeout       string `yaml:"timeout"`
	MaxRetries    *int   `yaml:"max_retries"`
}

// BaseURL returns the configured url, or the cloud url derived from region
func (e Endpoint) BaseURL() (string, error) {
	if e.URL != "" {
		return e.URL, nil
	}
	if e.Type == connector.DialectCloud && e.Region != "" {
		return fmt.Sprintf("https://workload.%s.cloudone.trendmicro.com/api/", e.Region), nil
	}
	return "", fmt.Errorf("url is required (or region for type %s)", connector.DialectCloud)
}

// Key resolves the api key from api_key, api_key_env or api_key_file, in that order
func (e Endpoint) Key() (string, error) {
	switch {
	case e.APIKey != "":
		return e.APIKey, nil
	case e.APIKeyEnv != "":
		key := os.Getenv(e.APIKeyEnv)
		if key == "" {
			return "", fmt.Errorf("api key variable %s is not set", e.APIKeyEnv)
		}
		return key, nil
	case e.APIKeyFile != "":
		data, err := os.ReadFile(e.APIKeyFile)
		if err != nil {
			return "", fmt.Errorf("failed to read api key file: %w", err)
		}
		key := strings.TrimSpace(string(data))
		if key == "" {
			return "", fmt.Errorf("api key file %s is empty", e.APIKeyFile)
		}
		return key, nil
	default:
		return "", errors.New("one of api_key, api_key_env or api_key_file is required")
	}
}

// TimeoutDuration parses timeout; zero means the connector default
func (e Endpoint) TimeoutDuration() (time.Duration, error) {
	if e.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(e.Timeout)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid timeout %q", e.Timeout)
	}
	return d, nil
}

// Retries returns max_retries or its default
func (e Endpoint) Retries() int {
	if e.MaxRetries == nil {
		return defaultMaxRetries
	}
	return *e.MaxRetries
}

// Registry addresses configured endpoints by 1-based id in file order
type Registry struct {
	endpoints []Endpoint
}

// NewRegistry returns the registry of cfg's endpoints
func NewRegistry(cfg *Config) *Registry {
	return &Registry{endpoints: cfg.Endpoints}
}

// Len returns the number of configured endpoints
func (r *Registry) Len() int {
	return len(r.endpoints)
}

// Get returns the endpoint with the given id
func (r *Registry) Get(id int) (Endpoint, error) {
	if id < 1 || id > len(r.endpoints) {
		if len(r.endpoints) == 0 {
			return Endpoint{}, fmt.Errorf("endpoint %d does not exist: no endpoints are configured", id)
		}
		return Endpoint{}, fmt.Errorf("endpoint %d does not exist: ids run from 1 to %d", id, len(r.endpoints))
	}
	return r.endpoints[id-1], nil
}

// Info returns the identity of endpoint id with its api key masked
func (r *Registry) Info(id int) (connector.EndpointInfo, error) {
	e, err := r.Get(id)
	if err != nil {
		return connector.EndpointInfo{}, err
	}
	info := connector.EndpointInfo{ID: id, Name: e.Name, Dialect: e.Type}
	if info.Name == "" {
		info.Name = fmt.Sprintf("endpoint-%d", id)
	}
	if u, err := e.BaseURL(); err == nil {
		info.URL = u
	}
	if key, err := e.Key(); err == nil {
		info.Key = connector.MaskKey(key)
	}
	return info, nil
}

// List returns every endpoint's identity in id order
func (r *Registry) List() []connector.EndpointInfo {
	out := make([]connector.EndpointInfo, 0, len(r.endpoints))
	for i := range r.endpoints {
		info, _ := r.Info(i + 1)
		out = append(out, info)
	}
	return out
}

// Connect builds the HTTP connector for endpoint id
func (r *Registry) Connect(id int, logger *slog.Logger) (*connector.Client, error) {
	e, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	info, _ := r.Info(id)

	baseURL, err := e.BaseURL()
	if err != nil {
		return nil, fmt.Errorf("endpoint %d: %w", id, err)
	}
	key, err := e.Key()
	if err != nil {
		return nil, fmt.Errorf("endpoint %d: %w", id, err)
	}
	timeout, err := e.TimeoutDuration()
	if err != nil {
		return nil, fmt.Errorf("endpoint %d: %w", id, err)
	}
	info.URL = baseURL

	client, err := connector.New(connector.Options{
		Info:          info,
		APIKey:        key,
		Timeout:       timeout,
		MaxRetries:    e.Retries(),
		TLSSkipVerify: e.TLSSkipVerify,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("endpoint %d: %w", id, err)
	}
	return client, nil
}
