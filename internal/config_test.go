package internal

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestSQLiteConfig_EmptyDriverDefaultsModernc(t *testing.T) {
	cfg := SQLiteConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty driver should default: %v", err)
	}
	if cfg.Driver != "sqlite" {
		t.Errorf("driver = %q, want %q", cfg.Driver, "sqlite")
	}
}

func TestSQLiteConfig_UnknownDriver(t *testing.T) {
	cfg := SQLiteConfig{Driver: "postgres"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown driver should fail validation")
	}
}

func TestCapturesConfig_Limits(t *testing.T) {
	cfg := NewDefaultConfig().Captures
	cfg.Max = 1
	if err := cfg.Validate(); err == nil {
		t.Error("max below 2 should fail")
	}

	cfg = NewDefaultConfig().Captures
	cfg.RetentionDays = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero retention should fail")
	}
}

func TestStorageConfig_Paths(t *testing.T) {
	cfg := StorageConfig{DataDir: filepath.Join("var", "ambient")}
	if got, want := cfg.TranscriptsPath(), filepath.Join("var", "ambient", "transcripts.db"); got != want {
		t.Errorf("transcripts = %q, want %q", got, want)
	}
	if got, want := cfg.TasksPath(), filepath.Join("var", "ambient", "tasks.db"); got != want {
		t.Errorf("tasks = %q, want %q", got, want)
	}
	if got, want := cfg.CapturesPath(), filepath.Join("var", "ambient", "captures"); got != want {
		t.Errorf("captures = %q, want %q", got, want)
	}

	if err := (&StorageConfig{}).Validate(); err == nil {
		t.Error("empty data dir should fail")
	}
}
