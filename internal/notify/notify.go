// Package notify sends post-build notifications to external services.
// Every call here is best-effort: failures are logged and never fail the
// build that triggered them.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/archtools/archidx/internal/config"
)

// purgeBatchSize is the maximum number of URLs per purge request.
const purgeBatchSize = 16

// Notifier sends the outbound calls configured for a build.
type Notifier struct {
	cfg    config.NotifyConfig
	client *http.Client
	logger *slog.Logger
}

// New returns a Notifier using the given configuration. A nil client gets
// a default with a conservative timeout.
func New(cfg config.NotifyConfig, client *http.Client, logger *slog.Logger) *Notifier {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Notifier{cfg: cfg, client: client, logger: logger}
}

// SearchReindex asks the search service to re-read the generated index.
// Does nothing when no reindex URL is configured.
func (n *Notifier) SearchReindex(ctx context.Context) {
	if n.cfg.SearchReindexURL == "" {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.SearchReindexURL, nil)
	if err != nil {
		n.logger.Warn("search reindex request failed", "error", err)
		return
	}
	if n.cfg.SearchReindexKey != "" {
		req.Header.Set("Authorization", "Bearer "+n.cfg.SearchReindexKey)
	}
	if err := n.send(req); err != nil {
		n.logger.Warn("search reindex request failed", "error", err)
		return
	}
	n.logger.Info("search reindex triggered", "url", n.cfg.SearchReindexURL)
}

// PurgePages invalidates the cached copies of the named output files. Each
// name is combined with every configured base URL, and the resulting list
// is sent in batches.
func (n *Notifier) PurgePages(ctx context.Context, names []string) {
	if n.cfg.PurgeURL == "" || len(names) == 0 || len(n.cfg.BaseURLs) == 0 {
		return
	}
	var urls []string
	for _, name := range names {
		for _, base := range n.cfg.BaseURLs {
			urls = append(urls, base+name)
		}
	}

	sent := 0
	for len(urls) > 0 {
		batch := urls
		if len(batch) > purgeBatchSize {
			batch = urls[:purgeBatchSize]
		}
		urls = urls[len(batch):]
		if err := n.purgeBatch(ctx, batch); err != nil {
			n.logger.Warn("cache purge failed", "error", err, "batch", len(batch))
			return
		}
		sent += len(batch)
	}
	n.logger.Info("cache purge complete", "urls", sent)
}

func (n *Notifier) purgeBatch(ctx context.Context, urls []string) error {
	body, err := json.Marshal(map[string][]string{"files": urls})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.PurgeURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Auth-Key", n.cfg.PurgeKey)
	req.Header.Set("X-Auth-Email", n.cfg.PurgeEmail)
	return n.send(req)
}

func (n *Notifier) send(req *http.Request) error {
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return nil
}
