package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Duration accepts yaml strings such as "20s" or "1h30m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", raw)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Server struct {
		Port            int      `yaml:"port"`
		ShutdownTimeout Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Workers struct {
		Count     int `yaml:"count"`
		QueueSize int `yaml:"queue_size"`
	} `yaml:"workers"`

	Delivery struct {
		MaxAttempts    int      `yaml:"max_attempts"`
		AttemptTimeout Duration `yaml:"attempt_timeout"`
		InitialDelay   Duration `yaml:"initial_delay"`
	} `yaml:"delivery"`

	Model struct {
		Name    string `yaml:"name"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"model"`

	Attachments struct {
		MaxBytes            int64    `yaml:"max_bytes"`
		AllowedContentTypes []string `yaml:"allowed_content_types"`
	} `yaml:"attachments"`

	Tasks struct {
		Retention     Duration `yaml:"retention"`
		SweepInterval Duration `yaml:"sweep_interval"`
	} `yaml:"tasks"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	// Secrets are only taken from the environment.
	Secret       string `yaml:"-"`
	RepoName     string `yaml:"-"`
	GeminiAPIKey string `yaml:"-"`
	GitHubPAT    string `yaml:"-"`
}

// LoadConfig reads the optional yaml file at path, then .env, then the
// process environment. Later sources win.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		f, err := os.Open(path)
		switch {
		case err == nil:
			defer f.Close()
			dec := yaml.NewDecoder(f)
			if err := dec.Decode(&cfg); err != nil {
				return nil, errors.Wrapf(err, "decode %s", path)
			}
		case !os.IsNotExist(err):
			return nil, errors.Wrapf(err, "open %s", path)
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(errors.Cause(err)) {
		return nil, errors.Wrap(err, "load .env")
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	c.Secret = os.Getenv("SECRET")
	c.RepoName = os.Getenv("REPO_NAME")
	c.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	c.GitHubPAT = os.Getenv("GITHUB_PAT")

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "invalid PORT %q", v)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(30 * time.Second)
	}
	if c.Workers.Count == 0 {
		c.Workers.Count = 4
	}
	if c.Workers.QueueSize == 0 {
		c.Workers.QueueSize = 64
	}
	if c.Delivery.MaxAttempts == 0 {
		c.Delivery.MaxAttempts = 10
	}
	if c.Delivery.AttemptTimeout == 0 {
		c.Delivery.AttemptTimeout = Duration(20 * time.Second)
	}
	if c.Delivery.InitialDelay == 0 {
		c.Delivery.InitialDelay = Duration(time.Second)
	}
	if c.Model.Name == "" {
		c.Model.Name = "gemini-2.5-flash"
	}
	if c.Model.BaseURL == "" {
		c.Model.BaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
	}
	if c.Attachments.MaxBytes == 0 {
		c.Attachments.MaxBytes = 5 * 1024 * 1024
	}
	if len(c.Attachments.AllowedContentTypes) == 0 {
		c.Attachments.AllowedContentTypes = []string{
			"text/plain", "text/csv", "text/markdown", "text/html", "text/css",
			"application/json", "application/pdf",
			"image/png", "image/jpeg", "image/gif", "image/svg+xml", "image/webp",
		}
	}
	if c.Tasks.SweepInterval == 0 {
		c.Tasks.SweepInterval = Duration(time.Hour)
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

var ErrMissingSetting = errors.New("missing required setting")

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	required := []struct{ name, value string }{
		{"SECRET", c.Secret},
		{"REPO_NAME", c.RepoName},
		{"GEMINI_API_KEY", c.GeminiAPIKey},
		{"GITHUB_PAT", c.GitHubPAT},
	}
	var missing []string
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		return errors.Wrap(ErrMissingSetting, strings.Join(missing, ", "))
	}
	if c.Workers.Count < 1 || c.Workers.QueueSize < 1 {
		return errors.New("workers.count and workers.queue_size must be positive")
	}
	return nil
}
