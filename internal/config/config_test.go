package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noenv(string) string { return "" }

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaults(t *testing.T) {
	t.Parallel()
	cfg := Defaults()
	assert.Equal(t, []string{".html"}, cfg.Extensions)
	assert.True(t, cfg.Parallel)
	assert.Equal(t, 200*time.Millisecond, cfg.Watch.Debounce)
	assert.Equal(t, "stderr", cfg.Logging.Output)
	require.NoError(t, Validate(cfg))
}

func TestInterpolateEnv(t *testing.T) {
	t.Parallel()
	getenv := func(key string) string {
		if key == "SITE" {
			return "/srv/site"
		}
		return ""
	}

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple substitution", "pages: ${SITE}", "pages: /srv/site"},
		{"default unused", "pages: ${SITE:-web}", "pages: /srv/site"},
		{"default used", "pages: ${UNSET:-web}", "pages: web"},
		{"unset without default", "pages: ${UNSET}", "pages: "},
		{"no pattern", "pages: web", "pages: web"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, string(interpolateEnv([]byte(tt.input), getenv)))
		})
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `
pages: ${PAGES_DIR:-site}
database: build/pages.db
scripts: /opt/helpers
extensions: [".html", ".htm"]
globals: [fmtMoney]
parallel: false
watch:
  debounce: 50ms
logging:
  output: logs/pagelogic.log
`)
	cfg, err := Load(path, noenv)
	require.NoError(t, err)

	base := filepath.Dir(path)
	assert.Equal(t, base, cfg.BaseDir)
	assert.Equal(t, filepath.Join(base, "site"), cfg.Pages)
	assert.Equal(t, filepath.Join(base, "build", "pages.db"), cfg.Database)
	assert.Equal(t, "/opt/helpers", cfg.Scripts)
	assert.Equal(t, []string{".html", ".htm"}, cfg.Extensions)
	assert.Equal(t, []string{"fmtMoney"}, cfg.Globals)
	assert.False(t, cfg.Parallel)
	assert.Equal(t, 50*time.Millisecond, cfg.Watch.Debounce)
	assert.Equal(t, filepath.Join(base, "logs", "pagelogic.log"), cfg.Logging.Output)
}

func TestLoad_KeepsDefaultsForMissingKeys(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "globals: [a]\n")
	cfg, err := Load(path, noenv)
	require.NoError(t, err)
	assert.Equal(t, []string{".html"}, cfg.Extensions)
	assert.True(t, cfg.Parallel)
	assert.Equal(t, "stderr", cfg.Logging.Output)
}

func TestLoad_EnvPath(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "pages: web\n")
	cfg, err := Load("", func(key string) string {
		if key == "PAGELOGIC_CONFIG" {
			return path
		}
		return ""
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "web"), cfg.Pages)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), noenv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")

	_, err = Load(writeConfig(t, "pages: [unclosed\n"), noenv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: parse")

	_, err = Load(writeConfig(t, "extensions: [html]\nglobals: [\"a-b\"]\n"), noenv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `extensions[0]: "html" must start with a dot`)
	assert.Contains(t, err.Error(), `globals[0]: "a-b" is not an identifier`)
}

func TestIsPage(t *testing.T) {
	t.Parallel()
	cfg := Defaults()
	cfg.Extensions = []string{".html", ".page"}
	assert.True(t, cfg.IsPage("site/index.html"))
	assert.True(t, cfg.IsPage("a.page"))
	assert.False(t, cfg.IsPage("main.go"))
}
