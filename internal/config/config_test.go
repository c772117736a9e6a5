package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		GoEnv:           "development",
		HTTPPort:        8888,
		JWTSecret:       strings.Repeat("s", 32),
		LogLevel:        "debug",
		MaxUploadBytes:  60 * 1024 * 1024,
		MaxFilenameLen:  50,
		ProviderWorkers: 5,
	}
}

func TestValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port too low", func(c *Config) { c.HTTPPort = 0 }, "HTTP_PORT"},
		{"port too high", func(c *Config) { c.HTTPPort = 70000 }, "HTTP_PORT"},
		{"short jwt secret", func(c *Config) { c.JWTSecret = "short" }, "JWT_SECRET"},
		{"unknown log level", func(c *Config) { c.LogLevel = "verbose" }, "LOG_LEVEL"},
		{"zero upload limit", func(c *Config) { c.MaxUploadBytes = 0 }, "MAX_UPLOAD_BYTES"},
		{"zero filename limit", func(c *Config) { c.MaxFilenameLen = 0 }, "MAX_FILENAME_LEN"},
		{"no workers", func(c *Config) { c.ProviderWorkers = 0 }, "PROVIDER_WORKERS"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %s", err, tc.want)
			}
		})
	}
}
