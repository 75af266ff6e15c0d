package config

import (
	"fmt"
	"strings"

	"yqhp/jobflow/pkg/utils"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates configuration values.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{errors: make(ValidationErrors, 0)}
}

func (v *Validator) addError(field, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
}

// Validate validates the entire configuration and returns any errors.
func (v *Validator) Validate(cfg *Config) error {
	v.errors = make(ValidationErrors, 0)

	v.validateLog(cfg)
	v.validateExecutor(cfg)
	v.validateHTTP(cfg)
	v.validateLedger(cfg)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

var (
	validLevels  = []string{"debug", "info", "warn", "error"}
	validFormats = []string{"json", "console"}
	validOutputs = []string{"stderr", "file", "both"}
)

func (v *Validator) validateLog(cfg *Config) {
	l := cfg.Log
	if !oneOf(l.Level, validLevels) {
		v.addError("log.level", fmt.Sprintf("invalid log level %q, expected one of %s", l.Level, strings.Join(validLevels, ", ")))
	}
	if !oneOf(l.Format, validFormats) {
		v.addError("log.format", fmt.Sprintf("invalid log format %q, expected one of %s", l.Format, strings.Join(validFormats, ", ")))
	}
	if !oneOf(l.Output, validOutputs) {
		v.addError("log.output", fmt.Sprintf("invalid log output %q, expected one of %s", l.Output, strings.Join(validOutputs, ", ")))
	}
	if (l.Output == "file" || l.Output == "both") && l.FilePath == "" {
		v.addError("log.file_path", "file path is required when logging to a file")
	}
}

func (v *Validator) validateExecutor(cfg *Config) {
	e := cfg.Executor
	if strings.TrimSpace(e.Shell) == "" {
		v.addError("executor.shell", "shell is required")
	}
	if e.Delimiter == "" {
		v.addError("executor.delimiter", "delimiter must not be empty")
	}
	if e.DefaultTimeout < 0 {
		v.addError("executor.default_timeout", "default timeout must be non-negative")
	}
}

func (v *Validator) validateHTTP(cfg *Config) {
	h := cfg.HTTP
	if h.Timeout < 0 {
		v.addError("http.timeout", "timeout must be non-negative")
	}
	if h.MaxConnsPerHost <= 0 {
		v.addError("http.max_conns_per_host", "max connections per host must be positive")
	}
	if h.MaxIdleConnDuration < 0 {
		v.addError("http.max_idle_conn_duration", "max idle connection duration must be non-negative")
	}
}

func (v *Validator) validateLedger(cfg *Config) {
	l := cfg.Ledger
	if l.MaxSize < 0 {
		v.addError("ledger.max_size", "max size must be non-negative")
	}
	if l.MaxBackups < 0 {
		v.addError("ledger.max_backups", "max backups must be non-negative")
	}
	if l.MaxAge < 0 {
		v.addError("ledger.max_age", "max age must be non-negative")
	}
}

func oneOf(s string, allowed []string) bool {
	return utils.SliceContains(allowed, strings.ToLower(s))
}

// Validate is a shorthand for NewValidator().Validate(cfg).
func Validate(cfg *Config) error {
	return NewValidator().Validate(cfg)
}
