package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const yamlRules = `
basePath: /docs
redirects:
  - source: /old
    destination: /new
    permanent: true
rewrites:
  beforeFiles:
    - source: /api/v1/:path*
      destination: /api/v2/:path*
  fallback:
    - source: /:path*
      destination: https://legacy.example.com/:path*
headers:
  - source: /api/:path*
    headers:
      - key: X-Custom-Header
        value: test-value
    has:
      - type: header
        key: X-Debug
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFile_YAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rules.yaml", yamlRules)

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/docs", cfg.BasePath)
	require.Len(t, cfg.Redirects, 1)
	assert.True(t, cfg.Redirects[0].Permanent)
	assert.Len(t, cfg.Rewrites.BeforeFiles, 1)
	assert.Empty(t, cfg.Rewrites.AfterFiles)
	assert.Len(t, cfg.Rewrites.Fallback, 1)
	require.Len(t, cfg.Headers, 1)
	assert.Equal(t, "header", cfg.Headers[0].Has[0].Type)
}

func TestLoadFile_YAMLRewriteList(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rules.yml", `
rewrites:
  - source: /a
    destination: /b
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Rewrites.AfterFiles, 1)
	assert.Empty(t, cfg.Rewrites.BeforeFiles)
}

func TestLoadFile_JSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rules.json", `{
  "trailingSlash": true,
  "redirects": [{"source": "/old", "destination": "/new", "statusCode": 301}],
  "rewrites": [{"source": "/a", "destination": "/b"}],
  "headers": []
}`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.True(t, cfg.TrailingSlash)
	assert.Equal(t, 301, cfg.Redirects[0].StatusCode)
	assert.Len(t, cfg.Rewrites.AfterFiles, 1)
}

func TestLoadFile_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadFile(writeFile(t, dir, "bad.json", `{"redirects": [`))
	assert.Error(t, err)

	_, err = LoadFile(writeFile(t, dir, "bad.yaml", "rewrites: 42\n"))
	assert.Error(t, err)
}

func TestNewFileStore(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rules.yaml", yamlRules)

	s, err := NewFileStore(path, WithLogger(zap.NewNop()))
	require.NoError(t, err)
	defer s.Close()

	snap := s.Snapshot()
	assert.Equal(t, path, snap.Source)
	assert.Equal(t, path, s.Path())
	assert.Len(t, snap.Config.Redirects, 1)
	assert.Empty(t, snap.Rejected)
}

func TestNewFileStore_MissingFile(t *testing.T) {
	_, err := NewFileStore(filepath.Join(t.TempDir(), "nope.yaml"), WithLogger(zap.NewNop()))
	assert.Error(t, err)
}

func TestFileStore_Reload(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "rules.yaml", yamlRules)

	s, err := NewFileStore(path, WithLogger(zap.NewNop()))
	require.NoError(t, err)

	writeFile(t, dir, "rules.yaml", `
redirects:
  - source: /x
    destination: /y
  - source: /broken
`)
	rejected, err := s.Reload()
	require.NoError(t, err)
	assert.Len(t, rejected, 1)
	assert.Equal(t, uint64(2), s.Snapshot().Version)
	assert.Equal(t, "/x", s.Snapshot().Config.Redirects[0].Source)

	// A broken file keeps the previous snapshot
	writeFile(t, dir, "rules.yaml", "redirects: [")
	_, err = s.Reload()
	assert.Error(t, err)
	assert.Equal(t, uint64(2), s.Snapshot().Version)
}

func TestFileStore_Watch(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "rules.yaml", yamlRules)

	s, err := NewFileStore(path, WithLogger(zap.NewNop()), WithDebounce(20*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Watch(ctx))
	require.NoError(t, s.Watch(ctx))

	writeFile(t, dir, "rules.yaml", `
redirects:
  - source: /changed
    destination: /elsewhere
`)

	assert.Eventually(t, func() bool {
		redirects := s.Snapshot().Config.Redirects
		return len(redirects) == 1 && redirects[0].Source == "/changed"
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}
