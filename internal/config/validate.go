package config

import (
	"errors"
	"fmt"
	"strings"

	logx "bulksend/pkg/logx"
)

// Validate reports every problem at once. A config that fails validation is
// never committed.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }
	dur := func(path, raw string) {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}

	if strings.TrimSpace(c.Server.Token) == "" {
		add("server.token is required (set ADMIN_TOKEN)")
	}
	if strings.TrimSpace(c.Server.Listen) == "" {
		add("server.listen is required")
	}
	dur("server.read_timeout", c.Server.ReadTimeout)
	dur("server.write_timeout", c.Server.WriteTimeout)
	dur("server.idle_timeout", c.Server.IdleTimeout)
	dur("server.shutdown_timeout", c.Server.ShutdownTimeout)

	switch strings.ToLower(strings.TrimSpace(c.Delivery.Driver)) {
	case "", "smtp":
		if strings.TrimSpace(c.SMTP.Host) == "" {
			add("smtp.host is required (set SMTP_HOST)")
		}
		if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
			add("smtp.port must be in 1..65535 (got %d)", c.SMTP.Port)
		}
		if strings.TrimSpace(c.SMTP.Username) == "" {
			add("smtp.username is required (set SMTP_USER)")
		}
		if c.SMTP.Password == "" {
			add("smtp.password is required (set SMTP_PASS)")
		}
	case "resend":
		if strings.TrimSpace(c.Resend.APIKey) == "" {
			add("resend.api_key is required (set RESEND_API_KEY)")
		}
		if strings.TrimSpace(c.Resend.From) == "" {
			add("resend.from is required")
		}
	case "log":
	default:
		add("unknown delivery.driver: %s", c.Delivery.Driver)
	}
	dur("smtp.timeout", c.SMTP.Timeout)

	d := c.Dispatch
	minDelay, err1 := ParseDurationField("dispatch.delay_min", d.DelayMin)
	maxDelay, err2 := ParseDurationField("dispatch.delay_max", d.DelayMax)
	if err1 != nil {
		errs = append(errs, err1)
	}
	if err2 != nil {
		errs = append(errs, err2)
	}
	if err1 == nil && err2 == nil && maxDelay < minDelay {
		add("dispatch.delay_max (%s) must be >= dispatch.delay_min (%s)", maxDelay, minDelay)
	}
	if d.MaxActiveJobs < 1 {
		add("dispatch.max_active_jobs must be >= 1")
	}
	if d.MaxRecipients < 1 {
		add("dispatch.max_recipients must be >= 1")
	}
	if d.MaxWorkers < 1 {
		add("dispatch.max_workers must be >= 1")
	}
	if d.DefaultWorkers < 1 || (d.MaxWorkers >= 1 && d.DefaultWorkers > d.MaxWorkers) {
		add("dispatch.default_workers must be in 1..max_workers (got %d)", d.DefaultWorkers)
	}
	if d.RatePerSec < 0 {
		add("dispatch.rate_per_sec must be >= 0")
	}

	dur("retention.ttl", c.Retention.TTL)
	if c.Retention.MaxJobs < 0 {
		add("retention.max_jobs must be >= 0")
	}

	if lvl := strings.TrimSpace(c.Logging.Level); lvl != "" && !logx.ValidLevel(lvl) {
		add("logging.level: unknown level %q", lvl)
	}
	if c.Logging.File.Enabled && strings.TrimSpace(c.Logging.File.Path) == "" {
		add("logging.file.path is required when logging.file.enabled")
	}

	if s := c.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "none", "file", "sqlite", "sqlite3":
		default:
			add("unknown storage.driver: %s", s.Driver)
		}
		dur("storage.busy_timeout", s.BusyTimeout)
	}

	return errors.Join(errs...)
}
