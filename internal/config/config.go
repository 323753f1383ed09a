// Package config provides configuration loading and validation for the API
// server and the poller. It uses koanf to merge environment variables with
// optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the service.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Storage
	DatabaseURL string `koanf:"database_url"`
	RedisURL    string `koanf:"redis_url"`

	// Twilio (verification + SMS)
	TwilioAccountSID       string `koanf:"twilio_account_sid"`
	TwilioAuthToken        string `koanf:"twilio_auth_token"`
	TwilioVerifyServiceSID string `koanf:"twilio_verify_service_sid"`
	TwilioFromNumber       string `koanf:"twilio_from_number"`

	// Report source (civic-report GraphQL API)
	SourceBaseURL      string `koanf:"source_base_url"`
	SourceGraphQLURL   string `koanf:"source_graphql_url"`
	SourceClientID     string `koanf:"source_client_id"`
	SourceRedirectURI  string `koanf:"source_redirect_uri"`
	SourceScope        string `koanf:"source_scope"`
	SourceAccessToken  string `koanf:"source_access_token"`
	SourceRefreshToken string `koanf:"source_refresh_token"`

	// Geocoder. Empty means the public Nominatim instance.
	GeocoderBaseURL string `koanf:"geocoder_base_url"`

	// Poller
	CronSecret   string `koanf:"cron_secret"`
	PollSchedule string `koanf:"poll_schedule"`

	// Default report type preselected for new alerts
	DefaultReportTypeID   string `koanf:"default_report_type_id"`
	DefaultReportTypeName string `koanf:"default_report_type_name"`

	// NearbyCacheTTLSeconds bounds reuse of nearby-report responses.
	NearbyCacheTTLSeconds int `koanf:"nearby_cache_ttl_seconds"`

	// CORSAllowedOrigins lists browser origins allowed to call the API.
	// Empty disables CORS entirely.
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`

	// PprofEnabled mounts the pprof handlers under /debug/pprof.
	// Refused outside development regardless of this flag.
	PprofEnabled bool `koanf:"pprof_enabled"`
}

// Configuration validation errors.
var (
	ErrMissingDatabaseURL        = errors.New("DATABASE_URL is required")
	ErrMissingRedisURL           = errors.New("REDIS_URL is required")
	ErrMissingTwilioAccountSID   = errors.New("TWILIO_ACCOUNT_SID is required")
	ErrMissingTwilioAuthToken    = errors.New("TWILIO_AUTH_TOKEN is required")
	ErrMissingTwilioVerifySID    = errors.New("TWILIO_VERIFY_SERVICE_SID is required")
	ErrMissingTwilioFromNumber   = errors.New("TWILIO_FROM_NUMBER is required")
	ErrMissingSourceBaseURL      = errors.New("SOURCE_BASE_URL is required")
	ErrMissingSourceGraphQLURL   = errors.New("SOURCE_GRAPHQL_URL is required")
	ErrMissingSourceClientID     = errors.New("SOURCE_CLIENT_ID is required")
	ErrMissingSourceRefreshToken = errors.New("SOURCE_REFRESH_TOKEN is required")
	ErrMissingCronSecret         = errors.New("CRON_SECRET is required")
	ErrInvalidPort               = errors.New("PORT must be a valid integer")
)

// Default values for non-secret configuration.
const (
	DefaultPort                  = 8080
	DefaultEnv                   = "development"
	DefaultPollSchedule          = "0 */10 * * * *" // every 10 minutes, second precision
	DefaultNearbyCacheTTLSeconds = 60

	// The "blocked driveway & illegal parking" report type.
	DefaultReportTypeID   = "963f1454-7c22-43be-aacb-3f34ae5d0dc7"
	DefaultReportTypeName = "Blocked driveway & illegal parking"
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	port, portErr := getEnvIntOrDefault("PORT", k.Int("port"), DefaultPort)
	if portErr != nil {
		loadErrs = append(loadErrs, portErr)
	}

	cacheTTL, cacheTTLErr := getEnvIntOrDefault("NEARBY_CACHE_TTL_SECONDS", k.Int("nearby_cache_ttl_seconds"), DefaultNearbyCacheTTLSeconds)
	if cacheTTLErr != nil {
		loadErrs = append(loadErrs, cacheTTLErr)
	}

	// Build config struct, with env vars taking precedence over file values
	cfg := &Config{
		Port: port,
		Env:  getEnvOrDefaultMulti([]string{"ALERT311_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),

		DatabaseURL: getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		RedisURL:    getEnvOrKoanf("REDIS_URL", k, "redis_url"),

		TwilioAccountSID:       getEnvOrKoanf("TWILIO_ACCOUNT_SID", k, "twilio_account_sid"),
		TwilioAuthToken:        getEnvOrKoanf("TWILIO_AUTH_TOKEN", k, "twilio_auth_token"),
		TwilioVerifyServiceSID: getEnvOrKoanf("TWILIO_VERIFY_SERVICE_SID", k, "twilio_verify_service_sid"),
		TwilioFromNumber:       getEnvOrKoanf("TWILIO_FROM_NUMBER", k, "twilio_from_number"),

		SourceBaseURL:      getEnvOrKoanf("SOURCE_BASE_URL", k, "source_base_url"),
		SourceGraphQLURL:   getEnvOrKoanf("SOURCE_GRAPHQL_URL", k, "source_graphql_url"),
		SourceClientID:     getEnvOrKoanf("SOURCE_CLIENT_ID", k, "source_client_id"),
		SourceRedirectURI:  getEnvOrKoanf("SOURCE_REDIRECT_URI", k, "source_redirect_uri"),
		SourceScope:        getEnvOrKoanf("SOURCE_SCOPE", k, "source_scope"),
		SourceAccessToken:  getEnvOrKoanf("SOURCE_ACCESS_TOKEN", k, "source_access_token"),
		SourceRefreshToken: getEnvOrKoanf("SOURCE_REFRESH_TOKEN", k, "source_refresh_token"),

		GeocoderBaseURL: getEnvOrKoanf("GEOCODER_BASE_URL", k, "geocoder_base_url"),

		CronSecret:   getEnvOrKoanf("CRON_SECRET", k, "cron_secret"),
		PollSchedule: getEnvOrDefault("POLL_SCHEDULE", k.String("poll_schedule"), DefaultPollSchedule),

		DefaultReportTypeID:   getEnvOrDefault("DEFAULT_REPORT_TYPE_ID", k.String("default_report_type_id"), DefaultReportTypeID),
		DefaultReportTypeName: getEnvOrDefault("DEFAULT_REPORT_TYPE_NAME", k.String("default_report_type_name"), DefaultReportTypeName),

		NearbyCacheTTLSeconds: cacheTTL,

		CORSAllowedOrigins: getEnvListOrKoanf("CORS_ALLOWED_ORIGINS", k, "cors_allowed_origins"),

		PprofEnabled: getEnvBoolOrKoanf("PPROF_ENABLED", k, "pprof_enabled"),
	}

	// Validate and collect errors
	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvListOrKoanf returns the environment variable split on commas if set,
// otherwise the koanf string list.
func getEnvListOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) []string {
	if val := os.Getenv(envKey); val != "" {
		parts := strings.Split(val, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	}
	return k.Strings(koanfKey)
}

// getEnvBoolOrKoanf returns the environment variable parsed as a bool if set,
// otherwise the koanf value. An unparsable value counts as false.
func getEnvBoolOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) bool {
	if val := os.Getenv(envKey); val != "" {
		b, err := strconv.ParseBool(val)
		return err == nil && b
	}
	return k.Bool(koanfKey)
}

// getEnvOrDefault returns the environment variable value if set, otherwise the koanf value, or default.
func getEnvOrDefault(envKey string, koanfVal string, defaultVal string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set, otherwise the koanf value, or default.
// Returns an error if the environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", envKey, ErrInvalidPort)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// Validate checks that all required configuration values are present.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if c.RedisURL == "" {
		errs = append(errs, ErrMissingRedisURL)
	}
	if c.TwilioAccountSID == "" {
		errs = append(errs, ErrMissingTwilioAccountSID)
	}
	if c.TwilioAuthToken == "" {
		errs = append(errs, ErrMissingTwilioAuthToken)
	}
	if c.TwilioVerifyServiceSID == "" {
		errs = append(errs, ErrMissingTwilioVerifySID)
	}
	if c.TwilioFromNumber == "" {
		errs = append(errs, ErrMissingTwilioFromNumber)
	}

	// The report source requires the OAuth client plus a seed refresh token.
	if c.SourceBaseURL == "" {
		errs = append(errs, ErrMissingSourceBaseURL)
	}
	if c.SourceGraphQLURL == "" {
		errs = append(errs, ErrMissingSourceGraphQLURL)
	}
	if c.SourceClientID == "" {
		errs = append(errs, ErrMissingSourceClientID)
	}
	if c.SourceRefreshToken == "" {
		errs = append(errs, ErrMissingSourceRefreshToken)
	}

	if c.CronSecret == "" {
		errs = append(errs, ErrMissingCronSecret)
	}

	return errs
}

// IsDevelopment reports whether the service runs in the development env.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                      fmt.Sprintf("%d", c.Port),
		"env":                       c.Env,
		"database_url":              maskDatabaseURL(c.DatabaseURL),
		"redis_url":                 maskDatabaseURL(c.RedisURL),
		"twilio_account_sid":        maskSID(c.TwilioAccountSID),
		"twilio_auth_token":         maskSecret(c.TwilioAuthToken),
		"twilio_verify_service_sid": maskSID(c.TwilioVerifyServiceSID),
		"twilio_from_number":        c.TwilioFromNumber,
		"source_base_url":           c.SourceBaseURL,
		"source_graphql_url":        c.SourceGraphQLURL,
		"source_client_id":          maskSecret(c.SourceClientID),
		"source_redirect_uri":       c.SourceRedirectURI,
		"source_scope":              c.SourceScope,
		"source_access_token":       maskSecret(c.SourceAccessToken),
		"source_refresh_token":      maskSecret(c.SourceRefreshToken),
		"geocoder_base_url":         c.GeocoderBaseURL,
		"cron_secret":               maskSecret(c.CronSecret),
		"poll_schedule":             c.PollSchedule,
		"default_report_type_id":    c.DefaultReportTypeID,
		"default_report_type_name":  c.DefaultReportTypeName,
		"nearby_cache_ttl_seconds":  fmt.Sprintf("%d", c.NearbyCacheTTLSeconds),
		"cors_allowed_origins":      strings.Join(c.CORSAllowedOrigins, ","),
		"pprof_enabled":             strconv.FormatBool(c.PprofEnabled),
	}
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskSID masks a Twilio SID, preserving the two-letter type prefix (AC, VA, ...).
func maskSID(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) > 2 {
		return s[:2] + "****"
	}
	return "****"
}

// maskDatabaseURL masks the password in a connection URL.
// Supports postgres://, postgresql://, and redis:// schemes.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	// Look for password pattern: user:password@host
	// Simple approach: find :// and then mask between : and @
	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	// Reconstruct URL with masked password
	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}
