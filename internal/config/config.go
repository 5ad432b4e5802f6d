package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	// HTTP Server
	Port string `validate:"required,numeric"`

	// Remote transaction API
	APIBaseURL string        `validate:"required,url"`
	APITimeout time.Duration `validate:"min=1s,max=2m"`

	// Sessions
	SessionBackend      string `validate:"oneof=memory sqlite"`
	SessionDBPath       string
	SessionTTL          time.Duration `validate:"min=1m"`
	SessionCookieSecure bool

	// Per-session view state (drafts and tables)
	ViewStateMaxEntries int           `validate:"min=10,max=1000000"`
	ViewStateTTL        time.Duration `validate:"min=1m"`

	LoginRatePerMinute int `validate:"min=1,max=600"`

	// AMQP, optional
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets audit mirror, used by the worker
	GoogleSpreadsheetID      string
	GoogleAuditSheetName     string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
	GoogleOAuthClientJSON    string
	GoogleOAuthClientFile    string
	GoogleOAuthTokenJSON     string
	GoogleOAuthTokenFile     string
	GoogleOAuthRedirectPort  string

	// Port of the worker's health, metrics and audit listener; empty disables it
	WorkerMetricsPort string

	// Logging
	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=text json"`
}

func Load() *Config {
	return &Config{
		Port: getEnv("PORT", "8081"),

		APIBaseURL: getEnv("API_BASE_URL", "http://localhost:8000/api"),
		APITimeout: getEnvDuration("API_TIMEOUT", 15*time.Second),

		SessionBackend:      getEnv("SESSION_BACKEND", "memory"),
		SessionDBPath:       getEnv("SESSION_DB_PATH", "./data/sessions.db"),
		SessionTTL:          getEnvDuration("SESSION_TTL", 12*time.Hour),
		SessionCookieSecure: getEnvBool("SESSION_COOKIE_SECURE", false),

		ViewStateMaxEntries: getEnvInt("VIEWSTATE_MAX_ENTRIES", 5000),
		ViewStateTTL:        getEnvDuration("VIEWSTATE_TTL", 2*time.Hour),

		LoginRatePerMinute: getEnvInt("LOGIN_RATE_PER_MINUTE", 10),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "txadmin"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "transaction_audit"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleAuditSheetName:     getEnv("GOOGLE_AUDIT_SHEET_NAME", "Audit"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")),
		GoogleOAuthClientJSON:    getEnv("GOOGLE_OAUTH_CLIENT_JSON", ""),
		GoogleOAuthClientFile:    getEnv("GOOGLE_OAUTH_CLIENT_FILE", ""),
		GoogleOAuthTokenJSON:     getEnv("GOOGLE_OAUTH_TOKEN_JSON", ""),
		GoogleOAuthTokenFile:     getEnv("GOOGLE_OAUTH_TOKEN_FILE", ""),
		GoogleOAuthRedirectPort:  getEnv("OAUTH_REDIRECT_PORT", "8085"),

		WorkerMetricsPort: getEnv("WORKER_METRICS_PORT", "9091"),

		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the web server configuration and returns every problem
// in one error.
func (c *Config) Validate() error {
	var errs []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, describe(fe))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}

	if port, err := strconv.Atoi(c.Port); err == nil && (port < 1 || port > 65535) {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if u, err := url.Parse(c.APIBaseURL); err == nil && c.APIBaseURL != "" {
		if u.Scheme != "http" && u.Scheme != "https" {
			errs = append(errs, fmt.Sprintf("invalid API_BASE_URL scheme '%s': must be 'http' or 'https'", u.Scheme))
		}
	}

	if c.SessionBackend == "sqlite" {
		if c.SessionDBPath == "" {
			errs = append(errs, "SESSION_DB_PATH cannot be empty when using the sqlite session backend")
		} else if dir := filepath.Dir(c.SessionDBPath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				errs = append(errs, fmt.Sprintf("cannot create session database directory '%s': %v", dir, err))
			}
		}
	}

	errs = append(errs, c.validateAMQP()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// ValidateWorker checks what the audit worker needs on top of logging.
func (c *Config) ValidateWorker() error {
	var errs []string
	if c.AMQPURL == "" {
		errs = append(errs, "AMQP_URL is required for the worker")
	}
	errs = append(errs, c.validateAMQP()...)
	if c.GoogleSpreadsheetID == "" {
		errs = append(errs, "GOOGLE_SPREADSHEET_ID is required for the worker")
	}
	if c.GoogleAuditSheetName == "" {
		errs = append(errs, "GOOGLE_AUDIT_SHEET_NAME cannot be empty")
	}
	hasServiceAccount := c.GoogleServiceAccountJSON != "" || c.GoogleServiceAccountFile != ""
	hasOAuthClient := c.GoogleOAuthClientJSON != "" || c.GoogleOAuthClientFile != ""
	hasOAuthToken := c.GoogleOAuthTokenJSON != "" || c.GoogleOAuthTokenFile != ""
	switch {
	case hasServiceAccount:
		if c.GoogleServiceAccountFile != "" && c.GoogleServiceAccountJSON == "" {
			errs = append(errs, checkFile("service account", c.GoogleServiceAccountFile)...)
		}
	case hasOAuthClient:
		if !hasOAuthToken {
			errs = append(errs, "an OAuth token is required with an OAuth client (run txadmin-sheets-auth)")
		}
		if c.GoogleOAuthClientFile != "" && c.GoogleOAuthClientJSON == "" {
			errs = append(errs, checkFile("oauth client", c.GoogleOAuthClientFile)...)
		}
		if c.GoogleOAuthTokenFile != "" && c.GoogleOAuthTokenJSON == "" {
			errs = append(errs, checkFile("oauth token", c.GoogleOAuthTokenFile)...)
		}
	default:
		errs = append(errs, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE (or an OAuth client and token) must be provided")
	}
	if len(errs) > 0 {
		return fmt.Errorf("worker configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

func checkFile(what, path string) []string {
	if _, err := os.Stat(path); err != nil {
		return []string{fmt.Sprintf("%s file does not exist: %s", what, path)}
	}
	return nil
}

func (c *Config) validateAMQP() []string {
	if c.AMQPURL == "" {
		return nil
	}
	var errs []string
	if parsed, err := url.Parse(c.AMQPURL); err != nil {
		errs = append(errs, fmt.Sprintf("invalid AMQP URL: %v", err))
	} else if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
		errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsed.Scheme))
	}
	if c.AMQPExchange == "" {
		errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
	}
	if c.AMQPQueue == "" {
		errs = append(errs, "AMQP queue name cannot be empty when AMQP URL is provided")
	}
	return errs
}

var envNames = map[string]string{
	"Port":                "PORT",
	"APIBaseURL":          "API_BASE_URL",
	"APITimeout":          "API_TIMEOUT",
	"SessionBackend":      "SESSION_BACKEND",
	"SessionTTL":          "SESSION_TTL",
	"ViewStateMaxEntries": "VIEWSTATE_MAX_ENTRIES",
	"ViewStateTTL":        "VIEWSTATE_TTL",
	"LoginRatePerMinute":  "LOGIN_RATE_PER_MINUTE",
	"LogLevel":            "LOG_LEVEL",
	"LogFormat":           "LOG_FORMAT",
}

// describe turns a validator failure into a message naming the env key.
func describe(fe validator.FieldError) string {
	name := envNames[fe.Field()]
	if name == "" {
		name = fe.Field()
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", name)
	case "numeric":
		return fmt.Sprintf("invalid %s '%v': must be a number", name, fe.Value())
	case "url":
		return fmt.Sprintf("invalid %s '%v': must be an absolute URL", name, fe.Value())
	case "oneof":
		return fmt.Sprintf("invalid %s '%v': must be one of [%s]", name, fe.Value(), fe.Param())
	case "min", "max":
		if d, ok := fe.Value().(time.Duration); ok {
			return fmt.Sprintf("invalid %s %v: out of range", name, d)
		}
		return fmt.Sprintf("invalid %s %v: must be %s %s", name, fe.Value(), fe.Tag(), fe.Param())
	default:
		return fmt.Sprintf("invalid %s: failed %s", name, fe.Tag())
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
