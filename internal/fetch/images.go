// Package fetch downloads remote images with bounded parallelism.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// maxImageBytes caps a single download; Instagram CDN images are well under this.
const maxImageBytes = 32 << 20

// Downloader fetches images over HTTP. Individual failures are tolerated:
// a failed URL yields a nil slot rather than aborting the batch.
type Downloader struct {
	client      *http.Client
	concurrency int
	log         *zap.Logger
}

// NewDownloader creates a Downloader with the given concurrency ceiling.
func NewDownloader(concurrency int, log *zap.Logger) *Downloader {
	if concurrency <= 0 {
		concurrency = 10
	}
	return &Downloader{
		client:      &http.Client{Timeout: 30 * time.Second},
		concurrency: concurrency,
		log:         log.Named("fetch"),
	}
}

// One downloads a single image, returning nil on any failure.
func (d *Downloader) One(ctx context.Context, url string) []byte {
	data, err := d.get(ctx, url)
	if err != nil {
		d.log.Warn("image download failed", zap.String("url", url), zap.Error(err))
		return nil
	}
	return data
}

// All downloads every URL concurrently. The result has the same length and
// order as urls; failed downloads are nil entries.
func (d *Downloader) All(ctx context.Context, urls []string) [][]byte {
	results := make([][]byte, len(urls))
	if len(urls) == 0 {
		return results
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)

	for i, url := range urls {
		g.Go(func() error {
			results[i] = d.One(gctx, url)
			return nil
		})
	}
	// Workers never return errors; failures are recorded as nil slots.
	_ = g.Wait()
	return results
}

// Valid returns only the successful downloads from All, preserving order.
func Valid(results [][]byte) [][]byte {
	out := make([][]byte, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (d *Downloader) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty body")
	}
	return data, nil
}
