package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"readingsurvey/internal/config"
	"readingsurvey/internal/logger"
)

func TestNewRequiresAllocationURL(t *testing.T) {
	cfg := config.DefaultConfig()
	_, err := New(context.Background(), cfg, logger.Nop())
	assert.ErrorContains(t, err, "allocation.url")
}

func TestNewWiresMemoryBackend(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Allocation.URL = "http://allocation.invalid/exec"

	a, err := New(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	defer a.Close(context.Background())

	assert.NotNil(t, a.Store)
	assert.NotNil(t, a.Sessions)

	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCatalogFromLocalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "texts.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"text_id":"t1","text":"text: hi","topic":"x"}]`), 0o644))

	cfg := config.DefaultConfig()
	cfg.Texts.URL = path

	cat, err := NewCatalog(cfg, logger.Nop()).Load(context.Background())
	require.NoError(t, err)
	e, ok := cat.Lookup("t1")
	require.True(t, ok)
	assert.Equal(t, "text: hi", e.Text)
}

func TestCatalogFromMissingLocalFile(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Texts.URL = filepath.Join(t.TempDir(), "absent.json")

	_, err := NewCatalog(cfg, logger.Nop()).Load(context.Background())
	assert.Error(t, err)
}

func TestCatalogOverHTTP(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2025-12-21-13", r.URL.Query().Get("v"))
		w.Write([]byte(`[{"text_id":"t1","text":"x","topic":"y"}]`))
	}))
	defer ts.Close()

	cfg := config.DefaultConfig()
	cfg.Texts.URL = ts.URL + "/texts.json"

	cat, err := NewCatalog(cfg, logger.Nop()).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, cat.Len())
}
