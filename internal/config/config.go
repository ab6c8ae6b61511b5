package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// SourceConfig describes the watched seminar listing page.
type SourceConfig struct {
	// URL is the listing page address.
	URL string `yaml:"url" json:"url"`

	// Heading is the section heading text preceding the seminar table,
	// e.g. "Schedule of the seminars". Matched by substring.
	Heading string `yaml:"heading" json:"heading"`

	// FetchMode selects how the page is retrieved:
	//   - "http" (default): plain GET with conditional-request caching
	//   - "browser": headless Chromium render, for JS-built listings
	FetchMode string `yaml:"fetch_mode" json:"fetch_mode"`

	// TimeoutSeconds bounds a single fetch.
	TimeoutSeconds int `yaml:"timeout_seconds" json:"timeout_seconds"`

	// CacheDir stores the conditional-request cache for http mode.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`
}

// MailConfig holds SMTP and message settings.
type MailConfig struct {
	SMTPHost     string `yaml:"smtp_host" json:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port" json:"smtp_port"`
	SMTPUser     string `yaml:"smtp_user" json:"smtp_user"`
	SMTPPassword string `yaml:"smtp_password" json:"smtp_password"`

	// STARTTLS upgrades the connection after connect (default). SSL dials
	// an implicit-TLS port instead; when SSL is set STARTTLS is ignored.
	STARTTLS bool `yaml:"starttls" json:"starttls"`
	SSL      bool `yaml:"ssl" json:"ssl"`

	From string   `yaml:"from" json:"from"`
	To   []string `yaml:"to" json:"to"`

	// Subject, if non-empty, overrides the generated digest subject.
	Subject string `yaml:"subject" json:"subject"`

	// SubjectPrefix is prepended to generated subjects and per-event
	// summaries.
	SubjectPrefix string `yaml:"subject_prefix" json:"subject_prefix"`

	// UIDDomain is the suffix of calendar event UIDs
	// (<identity-key>@<uid_domain>).
	UIDDomain string `yaml:"uid_domain" json:"uid_domain"`
}

// Config is the top-level application configuration.
type Config struct {
	Source SourceConfig `yaml:"source" json:"source"`

	// Timezone is the IANA zone seminar times are interpreted in
	// (e.g. "Asia/Hong_Kong").
	Timezone string `yaml:"timezone" json:"timezone"`

	// StateFile is the JSON file recording already-notified seminars.
	StateFile string `yaml:"state_file" json:"state_file"`

	// GraceMinutes lets a seminar that started up to this long ago still
	// count as upcoming, tolerating clock skew and late scheduler ticks.
	GraceMinutes int `yaml:"grace_minutes" json:"grace_minutes"`

	// DefaultStartTime ("HH:MM") is assumed when a row lists a date but
	// no time.
	DefaultStartTime string `yaml:"default_start_time" json:"default_start_time"`

	// DefaultDurationMinutes is assumed when a row lists no end time.
	DefaultDurationMinutes int `yaml:"default_duration_minutes" json:"default_duration_minutes"`

	// Schedule is the cron spec used in daemon mode.
	Schedule string `yaml:"schedule" json:"schedule"`

	Mail MailConfig `yaml:"mail" json:"mail"`
}

// envOverrides are environment overlays applied after the YAML file, so
// secrets never need to live on disk.
type envOverrides struct {
	SourceURL    string `env:"SEMINARCAL_SOURCE_URL"`
	StateFile    string `env:"SEMINARCAL_STATE_FILE"`
	SMTPHost     string `env:"SEMINARCAL_SMTP_HOST"`
	SMTPPort     int    `env:"SEMINARCAL_SMTP_PORT"`
	SMTPUser     string `env:"SEMINARCAL_SMTP_USER"`
	SMTPPassword string `env:"SEMINARCAL_SMTP_PASSWORD"`
	From         string `env:"SEMINARCAL_FROM"`
	To           string `env:"SEMINARCAL_TO"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			Heading:        "Schedule of the seminars",
			FetchMode:      "http",
			TimeoutSeconds: 20,
			CacheDir:       "./var/page-cache",
		},
		Timezone:               "Asia/Hong_Kong",
		StateFile:              "./sent_seminars.json",
		GraceMinutes:           15,
		DefaultStartTime:       "09:00",
		DefaultDurationMinutes: 60,
		Schedule:               "0 8 * * *",
		Mail: MailConfig{
			SMTPPort:      587,
			STARTTLS:      true,
			SubjectPrefix: "[Seminar] ",
			UIDDomain:     "seminarcal",
		},
	}
}

// Normalize fills in missing/zero values so partially-filled configs still
// behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Source.Heading == "" {
		c.Source.Heading = def.Source.Heading
	}
	switch c.Source.FetchMode {
	case "http", "browser":
	default:
		c.Source.FetchMode = "http"
	}
	if c.Source.TimeoutSeconds <= 0 {
		c.Source.TimeoutSeconds = def.Source.TimeoutSeconds
	}
	if c.Source.CacheDir == "" {
		c.Source.CacheDir = def.Source.CacheDir
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.StateFile == "" {
		c.StateFile = def.StateFile
	}
	if c.GraceMinutes < 0 {
		c.GraceMinutes = 0
	}
	if c.DefaultStartTime == "" {
		c.DefaultStartTime = def.DefaultStartTime
	}
	if c.DefaultDurationMinutes <= 0 {
		c.DefaultDurationMinutes = def.DefaultDurationMinutes
	}
	if c.Schedule == "" {
		c.Schedule = def.Schedule
	}
	if c.Mail.SMTPPort <= 0 {
		c.Mail.SMTPPort = def.Mail.SMTPPort
	}
	if c.Mail.SubjectPrefix == "" {
		c.Mail.SubjectPrefix = def.Mail.SubjectPrefix
	}
	if c.Mail.UIDDomain == "" {
		c.Mail.UIDDomain = def.Mail.UIDDomain
	}
	if c.Mail.From == "" {
		c.Mail.From = c.Mail.SMTPUser
	}
	if c.Mail.To == nil {
		c.Mail.To = []string{}
	}
}

// Validate checks the fields a real run needs. Mail settings are only
// required when sendRequired is true (dry runs build but never send).
func (c *Config) Validate(sendRequired bool) error {
	if c.Source.URL == "" {
		return errors.New("source.url is required")
	}
	if u, err := url.Parse(c.Source.URL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("source.url is not a valid absolute URL: %q", c.Source.URL)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone is invalid: %w", err)
	}
	if _, err := time.Parse("15:04", c.DefaultStartTime); err != nil {
		return fmt.Errorf("default_start_time must be HH:MM: %w", err)
	}
	if !sendRequired {
		return nil
	}
	if c.Mail.SMTPHost == "" {
		return errors.New("mail.smtp_host is required")
	}
	if c.Mail.From == "" {
		return errors.New("mail.from (or mail.smtp_user) is required")
	}
	if len(c.Mail.To) == 0 {
		return errors.New("mail.to is empty")
	}
	return nil
}

// Location resolves the configured timezone. Call after Validate.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// DefaultDuration returns the configured fallback event duration.
func (c *Config) DefaultDuration() time.Duration {
	return time.Duration(c.DefaultDurationMinutes) * time.Minute
}

// Grace returns the configured selector grace window.
func (c *Config) Grace() time.Duration {
	return time.Duration(c.GraceMinutes) * time.Minute
}

// Load loads configuration from the given YAML path and applies
// environment overrides.
//
// Behavior:
//   - If the file does not exist, defaults are used (the env overlay can
//     still supply everything a run needs).
//   - If the file exists, it is unmarshalled and normalized.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist):
			// First run without a file: proceed on defaults + env.
		default:
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	var ov envOverrides
	if err := env.Parse(&ov); err != nil {
		return fmt.Errorf("environment overrides are invalid: %w", err)
	}

	if ov.SourceURL != "" {
		cfg.Source.URL = ov.SourceURL
	}
	if ov.StateFile != "" {
		cfg.StateFile = ov.StateFile
	}
	if ov.SMTPHost != "" {
		cfg.Mail.SMTPHost = ov.SMTPHost
	}
	if ov.SMTPPort != 0 {
		cfg.Mail.SMTPPort = ov.SMTPPort
	}
	if ov.SMTPUser != "" {
		cfg.Mail.SMTPUser = ov.SMTPUser
	}
	if ov.SMTPPassword != "" {
		cfg.Mail.SMTPPassword = ov.SMTPPassword
	}
	if ov.From != "" {
		cfg.Mail.From = ov.From
	}
	if ov.To != "" {
		cfg.Mail.To = splitList(ov.To)
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Save writes the configuration to the given path atomically with 0600
// permissions, creating the parent directory if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Atomic write: temp file in the same directory, then rename.
	tmp, err := os.CreateTemp(dir, ".seminarcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
