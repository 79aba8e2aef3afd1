package config

import (
	"fmt"
	"net/url"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration for errors.
//
// Struct tag rules (required, oneof, ranges) are checked first, then
// cross-field rules that tags cannot express.
func Validate(cfg *Config) error {
	validate := validator.New()

	if err := validate.Struct(cfg); err != nil {
		return err
	}

	if err := cfg.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if cfg.Server.BaseURL != "" {
		if err := validateHTTPURL(cfg.Server.BaseURL); err != nil {
			return fmt.Errorf("server.base_url: %w", err)
		}
	}

	if cfg.Export.Endpoint != "" {
		if err := validateHTTPURL(cfg.Export.Endpoint); err != nil {
			return fmt.Errorf("export.endpoint: %w", err)
		}
	}

	if cfg.Server.Proxy.SharedSecretHeader != "" && cfg.Server.Proxy.SharedSecret == "" {
		return fmt.Errorf("server.proxy: shared_secret_header set without shared_secret")
	}

	return nil
}

// validateHTTPURL checks that s is an absolute http(s) URL.
func validateHTTPURL(s string) error {
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}
