package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bryanwahyu/agrivision/internal/config"
	domain "github.com/bryanwahyu/agrivision/internal/domain/analysis"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestImageRequest(t *testing.T) {
	req, err := imageRequest(" https://cdn.example.com/leaf.jpg ")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/leaf.jpg", req.ImageURL)

	dir := t.TempDir()
	img := filepath.Join(dir, "leaf.png")
	require.NoError(t, os.WriteFile(img, pngHeader, 0o600))
	req, err = imageRequest(img)
	require.NoError(t, err)
	assert.Equal(t, "image/png", req.ImageMIME)
	assert.NotEmpty(t, req.ImageData)
	assert.Empty(t, req.ImageURL)

	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("just text"), 0o600))
	_, err = imageRequest(txt)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = imageRequest(filepath.Join(dir, "missing.jpg"))
	assert.Error(t, err)
	_, err = imageRequest("")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestWeightsFrom(t *testing.T) {
	cfg := &config.Config{}
	cfg.Weights.Fallback = 0.5
	cfg.Weights.Backends = map[string]float64{"plant_id": 0.99, "my_model": 0.6}

	w := weightsFrom(cfg)
	assert.Equal(t, 0.99, w.Weight("plant_id"))
	assert.Equal(t, 0.6, w.Weight("my_model"))
	assert.Equal(t, 0.90, w.Weight("gemini"))
	assert.Equal(t, 0.5, w.Weight("other"))

	assert.Equal(t, domain.DefaultFallbackWeight, weightsFrom(&config.Config{}).Fallback)
}

func TestDefaultBackends(t *testing.T) {
	reg := domain.Registry{"b": nil, "a": nil}
	cfg := &config.Config{}
	assert.Equal(t, []domain.BackendID{"a", "b"}, defaultBackends(cfg, reg))

	cfg.Analysis.DefaultBackends = []string{"b"}
	assert.Equal(t, []domain.BackendID{"b"}, defaultBackends(cfg, reg))
}

func TestConfigPathPrecedence(t *testing.T) {
	t.Setenv("CONFIG_PATH", "/etc/agrivision/env.yaml")
	root := newRootCmd()
	serve, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	assert.Equal(t, "/etc/agrivision/env.yaml", configPath(serve))

	require.NoError(t, root.PersistentFlags().Set("config", "flag.yaml"))
	assert.Equal(t, "flag.yaml", configPath(serve))
}

func TestAnalyzeCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"responses":[{"labelAnnotations":[{"description":"Tomato plant","score":0.91}]}]}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	img := filepath.Join(dir, "leaf.png")
	require.NoError(t, os.WriteFile(img, pngHeader, 0o600))
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
log:
  level: error
backends:
  labels:
    type: vision_label
    endpoint: `+srv.URL+`
    apiKey: test
`), 0o600))

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"analyze", "-c", cfgPath, "--image", img})
	require.NoError(t, root.Execute())

	var res domain.CombinedAnalysisResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, domain.StatusComplete, res.Status)
	require.Len(t, res.Results, 1)
	assert.Equal(t, domain.BackendID("labels"), res.Results[0].Backend)
	require.NotNil(t, res.Consensus.Identification)
	assert.Equal(t, "Tomato plant", res.Consensus.Identification.Species)
}

func TestAnalyzeRequiresImage(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"analyze", "-c", "does-not-matter.yaml"})
	assert.Error(t, root.Execute())
}

func TestBuildAppHealthChecks(t *testing.T) {
	cfg, err := config.Parse([]byte(`
backends:
  labels:
    type: vision_label
    endpoint: http://127.0.0.1:1
    apiKey: test
  off:
    type: vision_label
    endpoint: http://127.0.0.1:1
    disabled: true
`))
	require.NoError(t, err)

	a, err := buildApp(context.Background(), cfg, zap.NewNop(), wireOptions{inMemory: true})
	require.NoError(t, err)
	defer a.Close()

	require.Contains(t, a.health, "backends")
	assert.NotContains(t, a.health, "database")
	assert.NotContains(t, a.health, "archive")
	assert.NoError(t, a.health["backends"].Check(context.Background()))
	// memory store keeps failures in the document only
	assert.Nil(t, a.svc.Failures)

	cfg.Backends = map[string]config.BackendConfig{}
	empty, err := buildApp(context.Background(), cfg, zap.NewNop(), wireOptions{inMemory: true})
	require.NoError(t, err)
	defer empty.Close()
	assert.ErrorIs(t, empty.health["backends"].Check(context.Background()), domain.ErrNotConfigured)
}
