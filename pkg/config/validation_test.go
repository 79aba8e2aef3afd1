package config

import (
	"strings"
	"testing"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	err := Validate(cfg)
	if err != nil {
		t.Errorf("Expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "INVALID"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Errorf("Expected 'oneof' validation error, got: %v", err)
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Format = "xml"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log format")
	}
}

func TestValidate_InvalidServerPort(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.Port = 70000 // Out of range

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for port out of range")
	}
	if !strings.Contains(err.Error(), "max") {
		t.Errorf("Expected 'max' validation error, got: %v", err)
	}
}

func TestValidate_NegativePort(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.Port = -1

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for negative port")
	}
}

func TestValidate_MissingSQLitePath(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Database.SQLite.Path = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for missing sqlite path")
	}
	errStr := strings.ToLower(err.Error())
	if !strings.Contains(errStr, "sqlite") || !strings.Contains(errStr, "path") {
		t.Errorf("Expected error about sqlite path, got: %v", err)
	}
}

func TestValidate_PostgresMissingHost(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Database.Type = "postgres"
	cfg.Database.Postgres.Database = "capmd"
	cfg.Database.Postgres.User = "capmd"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for missing postgres host")
	}
}

func TestValidate_BadBaseURL(t *testing.T) {
	cfg := GetDefaultConfig()

	for _, bad := range []string{"ftp://example.com", "not a url at all://", "https://"} {
		cfg.Server.BaseURL = bad
		if err := Validate(cfg); err == nil {
			t.Errorf("Expected validation error for base URL %q", bad)
		}
	}
}

func TestValidate_SampleRateOutOfRange(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Telemetry.SampleRate = 1.5

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for sample rate > 1.0")
	}
}

func TestValidate_ProxySecretHeaderWithoutSecret(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.Proxy.SharedSecretHeader = "X-Proxy-Secret"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for secret header without secret")
	}
}
