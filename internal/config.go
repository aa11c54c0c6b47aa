package internal

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/ambient/internal/capture"
	"github.com/starford/ambient/internal/sqlitedb"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// File names under the data directory.
const (
	transcriptsFile = "transcripts.db"
	tasksFile       = "tasks.db"
	capturesDir     = "captures"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Storage  StorageConfig     `yaml:"storage"`
	SQLite   SQLiteConfig      `yaml:"sqlite"`
	Captures CapturesConfig    `yaml:"captures"`
	Auth     AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Captures.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// StorageConfig points at the directory holding both databases and the
// capture files.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// Validate validates the storage configuration.
func (c *StorageConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DataDir, validation.Required),
	)
}

// TranscriptsPath is the transcript database file.
func (c *StorageConfig) TranscriptsPath() string {
	return filepath.Join(c.DataDir, transcriptsFile)
}

// TasksPath is the todo database file.
func (c *StorageConfig) TasksPath() string {
	return filepath.Join(c.DataDir, tasksFile)
}

// CapturesPath is the capture directory.
func (c *StorageConfig) CapturesPath() string {
	return filepath.Join(c.DataDir, capturesDir)
}

// SQLiteConfig selects the database driver shared by both stores.
type SQLiteConfig struct {
	Driver      string        `yaml:"driver"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	if c.Driver == "" {
		c.Driver = sqlitedb.DriverModernc
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.In(sqlitedb.DriverModernc, sqlitedb.DriverMattn)),
		validation.Field(&c.BusyTimeout, validation.Min(time.Duration(0))),
	)
}

// CapturesConfig holds capture index limits and the purge schedule.
type CapturesConfig struct {
	Max              int           `yaml:"max"`
	RetentionDays    int           `yaml:"retention_days"`
	UnattachedWindow time.Duration `yaml:"unattached_window"`
	PurgeInterval    time.Duration `yaml:"purge_interval"`
}

// Validate validates the capture configuration.
func (c *CapturesConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Max, validation.Required, validation.Min(2)),
		validation.Field(&c.RetentionDays, validation.Required, validation.Min(1)),
		validation.Field(&c.UnattachedWindow, validation.Required),
		validation.Field(&c.PurgeInterval, validation.Min(time.Duration(0))),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Storage: StorageConfig{
			DataDir: "./data",
		},
		SQLite: SQLiteConfig{
			Driver:      sqlitedb.DriverModernc,
			BusyTimeout: 5 * time.Second,
		},
		Captures: CapturesConfig{
			Max:              capture.DefaultMaxCaptures,
			RetentionDays:    capture.DefaultRetentionDays,
			UnattachedWindow: capture.DefaultUnattachedWindow,
			PurgeInterval:    time.Hour,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
