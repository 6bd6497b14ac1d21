package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads KEY=VALUE pairs from the given files (default ".env")
// into the process environment. Missing files are ignored and variables
// already set are never overwritten.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	return godotenv.Load(present...)
}

// ApplyEnv overrides cfg with environment variables. lookup is usually
// os.LookupEnv. DELAY_MIN and DELAY_MAX accept bare seconds ("60") like
// every duration setting.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if cfg == nil {
		return nil
	}
	get := func(k string) (string, bool) {
		v, ok := lookup(k)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	str := func(k string, dst *string) {
		if v, ok := get(k); ok {
			*dst = v
		}
	}
	num := func(k string, dst *int) error {
		v, ok := get(k)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: invalid integer %q", k, v)
		}
		*dst = n
		return nil
	}
	secs := func(k string, dst *string) error {
		v, ok := get(k)
		if !ok {
			return nil
		}
		if _, err := ParseDurationField(k, v); err != nil {
			return err
		}
		*dst = v
		return nil
	}

	str("SMTP_HOST", &cfg.SMTP.Host)
	str("SMTP_USER", &cfg.SMTP.Username)
	str("SMTP_PASS", &cfg.SMTP.Password)
	str("SMTP_FROM", &cfg.SMTP.From)
	str("ADMIN_TOKEN", &cfg.Server.Token)
	str("RESEND_API_KEY", &cfg.Resend.APIKey)
	str("RESEND_FROM", &cfg.Resend.From)
	str("DELIVERY_DRIVER", &cfg.Delivery.Driver)
	str("LOG_LEVEL", &cfg.Logging.Level)

	if v, ok := get("PORT"); ok {
		if _, err := strconv.Atoi(v); err != nil {
			return fmt.Errorf("PORT: invalid port %q", v)
		}
		cfg.Server.Listen = ":" + v
	}
	for _, f := range []func() error{
		func() error { return num("SMTP_PORT", &cfg.SMTP.Port) },
		func() error { return num("MAX_ACTIVE_JOBS", &cfg.Dispatch.MaxActiveJobs) },
		func() error { return num("MAX_RECIPIENTS", &cfg.Dispatch.MaxRecipients) },
		func() error { return num("MAX_WORKERS", &cfg.Dispatch.MaxWorkers) },
		func() error { return secs("DELAY_MIN", &cfg.Dispatch.DelayMin) },
		func() error { return secs("DELAY_MAX", &cfg.Dispatch.DelayMax) },
	} {
		if err := f(); err != nil {
			return err
		}
	}
	return nil
}
