package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(kv map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := kv[k]
		return v, ok
	}
}

func validEnv() map[string]string {
	return map[string]string{
		"ADMIN_TOKEN": "secret",
		"SMTP_USER":   "me@example.com",
		"SMTP_PASS":   "pw",
	}
}

func newTestManager(t *testing.T, name, body string, env map[string]string) *Manager {
	t.Helper()
	path := ""
	if name != "" {
		path = filepath.Join(t.TempDir(), name)
		if body != "" {
			require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
		}
	}
	m := NewManager(path)
	m.SetLookup(envMap(env))
	return m
}

func TestParseDefaultsWhenFileMissing(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, "absent.json", "", nil)
	cfg, err := m.Parse()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "mail.privateemail.com", cfg.SMTP.Host)
	assert.Equal(t, 465, cfg.SMTP.Port)
	assert.Equal(t, ":8080", cfg.Server.Listen)
	assert.Equal(t, 300, cfg.Dispatch.MaxRecipients)
}

func TestParseYAMLOverridesDefaults(t *testing.T) {
	t.Parallel()
	body := `
server:
  listen: "127.0.0.1:9000"
  cors_origins: ["https://ops.example.com"]
dispatch:
  delay_min: 1s
  delay_max: 2s
  max_workers: 5
storage:
  driver: sqlite
  path: ./data/bulksend.db
`
	m := newTestManager(t, "config.yaml", body, nil)
	cfg, err := m.Parse()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Listen)
	assert.Equal(t, []string{"https://ops.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "1s", cfg.Dispatch.DelayMin)
	assert.Equal(t, 5, cfg.Dispatch.MaxWorkers)
	// untouched keys keep defaults
	assert.Equal(t, 300, cfg.Dispatch.MaxRecipients)
	assert.Equal(t, "20s", cfg.SMTP.Timeout)
	require.NotNil(t, cfg.Storage)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, "config.json", `{"dispatch":{"delay":"5s"}}`, nil)
	_, err := m.Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown field")

	m = newTestManager(t, "config.json", `{} {}`, nil)
	_, err = m.Parse()
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()
	cfg := Default()
	err := ApplyEnv(cfg, envMap(map[string]string{
		"SMTP_HOST":       "smtp.example.com",
		"SMTP_PORT":       "587",
		"ADMIN_TOKEN":     "tok",
		"DELAY_MIN":       "5",
		"DELAY_MAX":       "1m",
		"MAX_WORKERS":     "4",
		"PORT":            "9090",
		"DELIVERY_DRIVER": "log",
		"LOG_LEVEL":       " debug ",
		"SMTP_PASS":       "",
	}))
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com", cfg.SMTP.Host)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.Equal(t, "tok", cfg.Server.Token)
	assert.Equal(t, "5", cfg.Dispatch.DelayMin)
	assert.Equal(t, "1m", cfg.Dispatch.DelayMax)
	assert.Equal(t, 4, cfg.Dispatch.MaxWorkers)
	assert.Equal(t, ":9090", cfg.Server.Listen)
	assert.Equal(t, "log", cfg.Delivery.Driver)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "", cfg.SMTP.Password)
}

func TestApplyEnvRejectsGarbage(t *testing.T) {
	t.Parallel()
	for k, v := range map[string]string{"SMTP_PORT": "abc", "PORT": "x", "DELAY_MIN": "soon", "MAX_RECIPIENTS": "1.5"} {
		err := ApplyEnv(Default(), envMap(map[string]string{k: v}))
		assert.Error(t, err, k)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	ok := func() *Config {
		c := Default()
		require.NoError(t, ApplyEnv(c, envMap(validEnv())))
		return c
	}
	require.NoError(t, ok().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"missing token", func(c *Config) { c.Server.Token = "" }, "server.token"},
		{"missing smtp password", func(c *Config) { c.SMTP.Password = "" }, "smtp.password"},
		{"delay order", func(c *Config) { c.Dispatch.DelayMin, c.Dispatch.DelayMax = "10s", "5s" }, "delay_max"},
		{"bad delay", func(c *Config) { c.Dispatch.DelayMin = "soon" }, "dispatch.delay_min"},
		{"default workers", func(c *Config) { c.Dispatch.DefaultWorkers = 9 }, "default_workers"},
		{"resend key", func(c *Config) { c.Delivery.Driver = "resend" }, "resend.api_key"},
		{"driver", func(c *Config) { c.Delivery.Driver = "pigeon" }, "delivery.driver"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"storage driver", func(c *Config) { c.Storage = &StorageConfig{Driver: "etcd"} }, "storage.driver"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := ok()
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	t.Run("log driver needs no credentials", func(t *testing.T) {
		t.Parallel()
		c := Default()
		c.Server.Token = "t"
		c.Delivery.Driver = "log"
		assert.NoError(t, c.Validate())
	})
}

func TestLoadFailsFastWithoutToken(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, "", "", map[string]string{"SMTP_USER": "u", "SMTP_PASS": "p"})
	_, err := m.Load()
	require.Error(t, err)
	assert.Nil(t, m.Get())
}

func TestReloadPublishesOnlyValidChanges(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, "config.json", `{"dispatch":{"max_workers":3}}`, validEnv())
	_, err := m.Load()
	require.NoError(t, err)
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	changed, err := m.Reload(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)

	require.NoError(t, os.WriteFile(m.Path(), []byte(`{"dispatch":{"max_workers":2}}`), 0o600))
	changed, err = m.Reload(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)
	got := <-ch
	assert.Equal(t, 2, got.Dispatch.MaxWorkers)

	require.NoError(t, os.WriteFile(m.Path(), []byte(`{"dispatch":{"max_workers":0}}`), 0o600))
	_, err = m.Reload(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, m.Get().Dispatch.MaxWorkers)
}

func TestValidatorHookRejects(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, "", "", validEnv())
	m.SetValidator(func(ctx context.Context, cfg *Config) error { return assert.AnError })
	_, err := m.Load()
	assert.ErrorIs(t, err, assert.AnError)
}

func TestPublishKeepsNewest(t *testing.T) {
	t.Parallel()
	m := NewManager("")
	ch := m.Subscribe(1)
	a, b := Default(), Default()
	b.Dispatch.MaxWorkers = 9
	m.publish(a)
	m.publish(b)
	assert.Same(t, b, <-ch)

	m.Unsubscribe(ch)
	_, open := <-ch
	assert.False(t, open)
}

func TestWatchReloadsOnWrite(t *testing.T) {
	t.Parallel()
	m := newTestManager(t, "config.json", `{"dispatch":{"max_recipients":10}}`, validEnv())
	m.debounce = 20 * time.Millisecond
	_, err := m.Load()
	require.NoError(t, err)
	ch := m.Subscribe(4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	// Retry the write: the watcher may not be registered yet.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case got := <-ch:
			assert.Equal(t, 20, got.Dispatch.MaxRecipients)
			return
		case <-tick.C:
			require.NoError(t, os.WriteFile(m.Path(), []byte(`{"dispatch":{"max_recipients":20}}`), 0o600))
		case <-deadline:
			t.Fatal("no reload observed")
		}
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("BULKSEND_TEST_DOTENV=from-file\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("BULKSEND_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), path))
	assert.Equal(t, "from-file", os.Getenv("BULKSEND_TEST_DOTENV"))
}

func TestSummarizeConfigChangeHidesSecrets(t *testing.T) {
	t.Parallel()
	a := Default()
	b := Default()
	b.SMTP.Password = "hunter2"
	b.Server.Token = "new"
	b.Dispatch.MaxWorkers = 1
	b.Logging.Level = "debug"

	changed, attrs := SummarizeConfigChange(a, b)
	assert.ElementsMatch(t, []string{"auth", "smtp", "dispatch", "logging"}, changed)
	assert.NotEmpty(t, attrs)
	assert.ElementsMatch(t, []string{"smtp"}, RestartRequired(changed))

	none, _ := SummarizeConfigChange(a, Default())
	assert.Empty(t, none)
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationOrDefault("x", "", 3*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, d)
	d, err = ParseDurationOrDefault("x", "250ms", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, d)
	_, err = ParseDurationField("x", "-1s")
	assert.Error(t, err)
	_, err = ParseDurationField("x", "soon")
	assert.ErrorContains(t, err, `x: invalid duration "soon"`)

	d, err = ParseDurationField("x", "65")
	require.NoError(t, err)
	assert.Equal(t, 65*time.Second, d)
	d, err = ParseDurationField("x", "1.5")
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, d)
}

func TestToJSON(t *testing.T) {
	t.Parallel()

	b, err := toJSON("c.json", []byte(`{"a":1}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(b))

	b, err = toJSON("c.yml", []byte("smtp:\n  port: 587\n"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"smtp":{"port":587}}`, string(b))

	b, err = toJSON("c.yaml", nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(b))

	_, err = toJSON("c.yaml", []byte("a: 1\n---\nb: 2\n"))
	assert.ErrorContains(t, err, "single yaml document")

	_, err = toJSON("c.yaml", []byte("a: [1,"))
	assert.Error(t, err)
}
