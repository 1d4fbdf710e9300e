// Package notify posts end-of-run summaries to configured webhook URLs.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	defaultTimeout     = 2 * time.Second
	defaultConcurrency = 4
)

// Payload is the JSON body posted after a run
type Payload struct {
	RunID       string         `json:"run_id"`
	Kind        string         `json:"kind"`
	Source      string         `json:"source"`
	Destination string         `json:"destination"`
	Status      string         `json:"status"`
	Counts      map[string]int `json:"counts"`
	Error       string         `json:"error,omitempty"`
}

// Notifier delivers payloads to a fixed set of URLs
type Notifier struct {
	urls        []string
	client      *http.Client
	concurrency int
	logger      *slog.Logger
}

// New builds a notifier for urls. Invalid and duplicate URLs are dropped
// with a warning. It returns nil when no usable URL remains.
func New(urls []string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	targets := normalizeURLs(urls, logger)
	if len(targets) == 0 {
		return nil
	}
	return &Notifier{
		urls:        targets,
		client:      &http.Client{Timeout: defaultTimeout},
		concurrency: defaultConcurrency,
		logger:      logger,
	}
}

// URLs returns the normalized targets
func (n *Notifier) URLs() []string {
	if n == nil {
		return nil
	}
	return n.urls
}

// Send posts payload to every URL and waits for all deliveries. Delivery
// failures are logged and never returned.
func (n *Notifier) Send(ctx context.Context, payload Payload) {
	if n == nil || len(n.urls) == 0 {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Warn("notify: failed to encode payload", "run", payload.RunID, "error", err)
		return
	}

	workers := n.concurrency
	if len(n.urls) < workers {
		workers = len(n.urls)
	}

	jobs := make(chan string)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for endpoint := range jobs {
				if err := n.post(ctx, endpoint, body); err != nil {
					n.logger.Warn("notify: delivery failed", "url", endpoint, "run", payload.RunID, "error", err)
				}
			}
		}()
	}

	for _, endpoint := range n.urls {
		jobs <- endpoint
	}
	close(jobs)
	wg.Wait()
}

func (n *Notifier) post(ctx context.Context, endpoint string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return nil
}

func normalizeURLs(urls []string, logger *slog.Logger) []string {
	seen := make(map[string]struct{}, len(urls))
	var normalized []string
	for _, raw := range urls {
		trimmed := strings.TrimRight(strings.TrimSpace(raw), "/")
		if trimmed == "" {
			continue
		}
		if !isValidURL(trimmed) {
			logger.Warn("notify: skipping invalid url", "url", trimmed)
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		normalized = append(normalized, trimmed)
	}
	return normalized
}

func isValidURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	return parsed.Host != ""
}
