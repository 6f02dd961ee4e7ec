package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	c := DefaultConfig()
	require.NoError(t, c.Validate())
	assert.Equal(t, "/ws", c.Server.WSPath)
	assert.Equal(t, 100, c.History.Capacity)
	assert.Equal(t, 500*time.Millisecond, c.History.SaveDebounce)
	assert.True(t, c.Replication.ResyncOnDrop)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"empty addr":     func(c *Config) { c.Server.Addr = "" },
		"relative path":  func(c *Config) { c.Server.WSPath = "ws" },
		"bad metrics":    func(c *Config) { c.Server.MetricsPath = "metrics" },
		"no store":       func(c *Config) { c.Store.Path = "" },
		"zero capacity":  func(c *Config) { c.History.Capacity = 0 },
		"codec":          func(c *Config) { c.Replication.Codec = "msgpack" },
		"short secret":   func(c *Config) { c.Auth.Secret = "short" },
		"watch no file":  func(c *Config) { c.Library.Watch = []LibraryWatch{{ProjectID: "p"}} },
		"log level":      func(c *Config) { c.Log.Level = "trace" },
		"log format":     func(c *Config) { c.Log.Format = "xml" },
		"negative delay": func(c *Config) { c.History.SaveDebounce = -time.Second },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := DefaultConfig()
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patternkit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: 0.0.0.0:9000
history:
  capacity: 20
  save_debounce: 2s
replication:
  codec: cbor
library:
  watch:
    - file: ./dist/analysis.json
      project_id: p1
`), 0o644))

	c, err := LoadFromFile(path)
	require.NoError(t, err)
	require.NoError(t, c.Validate())
	assert.Equal(t, "0.0.0.0:9000", c.Server.Addr)
	assert.Equal(t, "/ws", c.Server.WSPath, "defaults fill the rest")
	assert.Equal(t, 20, c.History.Capacity)
	assert.Equal(t, 2*time.Second, c.History.SaveDebounce)
	assert.Equal(t, "cbor", c.Replication.Codec)
	require.Len(t, c.Library.Watch, 1)
	assert.Equal(t, "p1", c.Library.Watch[0].ProjectID)

	_, err = LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	c := DefaultConfig()
	c.Auth.Secret = "0123456789abcdef0123"
	c.Library.Watch = []LibraryWatch{{File: "analysis.json", ProjectID: "p1", LibraryID: "l1"}}
	require.NoError(t, c.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, c, loaded)
}

func TestMerge(t *testing.T) {
	c := DefaultConfig()
	c.Merge(nil)
	c.Merge(&Config{
		Server:  ServerConfig{Addr: ":1"},
		History: HistoryConfig{Capacity: 5},
		Log:     LogConfig{Format: "json"},
	})
	assert.Equal(t, ":1", c.Server.Addr)
	assert.Equal(t, "/ws", c.Server.WSPath)
	assert.Equal(t, 5, c.History.Capacity)
	assert.Equal(t, "json", c.Log.Format)
	assert.Equal(t, "info", c.Log.Level)
}

func TestLoaderLayers(t *testing.T) {
	home := t.TempDir()
	wd := t.TempDir()
	explicit := filepath.Join(t.TempDir(), "explicit.yaml")

	userPath := filepath.Join(home, UserConfigDir, UserConfigFile)
	require.NoError(t, os.MkdirAll(filepath.Dir(userPath), 0o755))
	require.NoError(t, os.WriteFile(userPath, []byte("server:\n  addr: user:1\nlog:\n  level: debug\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(wd, ProjectConfigFile), []byte("history:\n  capacity: 7\n"), 0o644))
	require.NoError(t, os.WriteFile(explicit, []byte("server:\n  addr: explicit:2\n"), 0o644))

	l := NewLoader(nil)
	l.home = func() (string, error) { return home, nil }
	l.wd = func() (string, error) { return wd, nil }
	l.getenv = func(key string) string {
		if key == EnvConfig {
			return explicit
		}
		return ""
	}

	c, err := l.Load("")
	require.NoError(t, err)
	assert.Equal(t, "explicit:2", c.Server.Addr)
	assert.Equal(t, "debug", c.Log.Level, "user layer survives later layers")
	assert.Equal(t, 7, c.History.Capacity)

	_, err = l.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err, "an explicit file must exist")
}
