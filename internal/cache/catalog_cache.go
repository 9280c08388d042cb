package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"golang.org/x/sync/singleflight"

	"readingsurvey/internal/logger"
	"readingsurvey/internal/model"
)

// CatalogCache fetches texts.json once and serves lookups from memory
type CatalogCache struct {
	httpClient *http.Client
	url        string
	log        *logger.Logger

	group   singleflight.Group
	mu      sync.RWMutex
	catalog *model.Catalog

	settled    chan struct{} // closed when the first Load attempt finishes
	settleOnce sync.Once
}

// NewCatalogCache creates a cache for the texts at url
func NewCatalogCache(httpClient *http.Client, url string, log *logger.Logger) *CatalogCache {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &CatalogCache{
		httpClient: httpClient,
		url:        url,
		log:        log.With("component", "catalog"),
		settled:    make(chan struct{}),
	}
}

// Load fetches the catalog unless it is already loaded. Concurrent callers
// share one request; a failed load can be retried.
func (c *CatalogCache) Load(ctx context.Context) (*model.Catalog, error) {
	if cat := c.current(); cat != nil {
		return cat, nil
	}
	v, err, _ := c.group.Do("catalog", func() (interface{}, error) {
		if cat := c.current(); cat != nil {
			return cat, nil
		}
		cat, err := c.fetch(ctx)
		if err == nil {
			c.mu.Lock()
			c.catalog = cat
			c.mu.Unlock()
		}
		c.settleOnce.Do(func() { close(c.settled) })
		if err != nil {
			return nil, err
		}
		c.log.Info("catalog loaded", "texts", cat.Len())
		return cat, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Catalog), nil
}

// Wait blocks until the first Load attempt finished or ctx is done. Once an
// attempt has failed, every Wait loads again.
func (c *CatalogCache) Wait(ctx context.Context) (*model.Catalog, error) {
	if cat := c.current(); cat != nil {
		return cat, nil
	}
	select {
	case <-c.settled:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return c.Load(ctx)
}

// Lookup returns the entry for textID if the catalog is loaded
func (c *CatalogCache) Lookup(textID string) (model.CatalogEntry, bool) {
	return c.current().Lookup(textID)
}

// Loaded reports whether Load has succeeded
func (c *CatalogCache) Loaded() bool {
	return c.current() != nil
}

// Current returns the loaded catalog, or nil before the first successful Load
func (c *CatalogCache) Current() *model.Catalog {
	return c.current()
}

func (c *CatalogCache) current() *model.Catalog {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.catalog
}

func (c *CatalogCache) fetch(ctx context.Context) (*model.Catalog, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, &model.CatalogLoadError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Cache-Control", "no-store")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error("catalog request failed", "url", c.url, "error", err)
		return nil, &model.CatalogLoadError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Error("catalog request rejected", "url", c.url, "status", resp.StatusCode)
		return nil, &model.CatalogLoadError{Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &model.CatalogLoadError{Err: fmt.Errorf("failed to read body: %w", err)}
	}
	records, err := decodeCatalog(body)
	if err != nil {
		c.log.Error("catalog payload malformed", "url", c.url, "bytes", len(body), "error", err)
		return nil, &model.CatalogLoadError{Err: err}
	}
	return model.NewCatalog(records), nil
}

func decodeCatalog(body []byte) ([]model.CatalogRecord, error) {
	var records []model.CatalogRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("failed to parse texts: %w", err)
	}
	if records == nil {
		return nil, errors.New("texts payload is not an array")
	}
	for i, r := range records {
		if r.TextID == "" {
			return nil, fmt.Errorf("texts[%d] has no text_id", i)
		}
	}
	return records, nil
}
