package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries everything the service needs at startup. Load fails fast
// on a missing or non-positive value so a misconfigured deploy never
// serves traffic.
type Config struct {
	HTTPAddr string
	BaseURL  string
	PGDSN    string

	JWT   JWT
	Email Email
}

// JWT holds token signing settings.
type JWT struct {
	Secret     string
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Email holds outbound mail settings.
type Email struct {
	APIKey     string
	FromEmail  string
	FromName   string
	RetryCount int
	RetryDelay time.Duration
	Sandbox    bool
}

// Load reads configuration from the environment.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr: getenvDefault("COLLABDOC_HTTP_ADDR", ":8080"),
		BaseURL:  os.Getenv("COLLABDOC_BASE_URL"),
		PGDSN:    os.Getenv("COLLABDOC_PG_DSN"),
		JWT: JWT{
			Secret:   os.Getenv("COLLABDOC_JWT_SECRET"),
			Issuer:   os.Getenv("COLLABDOC_JWT_ISSUER"),
			Audience: os.Getenv("COLLABDOC_JWT_AUDIENCE"),
		},
		Email: Email{
			APIKey:    os.Getenv("COLLABDOC_SENDGRID_API_KEY"),
			FromEmail: os.Getenv("COLLABDOC_EMAIL_FROM"),
			FromName:  os.Getenv("COLLABDOC_EMAIL_FROM_NAME"),
			Sandbox:   parseBool(os.Getenv("COLLABDOC_EMAIL_SANDBOX")),
		},
	}

	accessHours, err := requirePositiveInt("COLLABDOC_ACCESS_TOKEN_TTL_HOURS")
	if err != nil {
		return Config{}, err
	}
	refreshDays, err := requirePositiveInt("COLLABDOC_REFRESH_TOKEN_TTL_DAYS")
	if err != nil {
		return Config{}, err
	}
	cfg.JWT.AccessTTL = time.Duration(accessHours) * time.Hour
	cfg.JWT.RefreshTTL = time.Duration(refreshDays) * 24 * time.Hour

	retryCount, err := positiveIntDefault("COLLABDOC_EMAIL_RETRY_COUNT", 3)
	if err != nil {
		return Config{}, err
	}
	retryDelayMS, err := positiveIntDefault("COLLABDOC_EMAIL_RETRY_DELAY_MS", 1000)
	if err != nil {
		return Config{}, err
	}
	cfg.Email.RetryCount = retryCount
	cfg.Email.RetryDelay = time.Duration(retryDelayMS) * time.Millisecond

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	required := map[string]string{
		"COLLABDOC_BASE_URL":         c.BaseURL,
		"COLLABDOC_PG_DSN":           c.PGDSN,
		"COLLABDOC_JWT_SECRET":       c.JWT.Secret,
		"COLLABDOC_JWT_ISSUER":       c.JWT.Issuer,
		"COLLABDOC_JWT_AUDIENCE":     c.JWT.Audience,
		"COLLABDOC_SENDGRID_API_KEY": c.Email.APIKey,
		"COLLABDOC_EMAIL_FROM":       c.Email.FromEmail,
		"COLLABDOC_EMAIL_FROM_NAME":  c.Email.FromName,
	}
	// Deterministic error order keeps startup logs stable.
	for _, key := range []string{
		"COLLABDOC_BASE_URL",
		"COLLABDOC_PG_DSN",
		"COLLABDOC_JWT_SECRET",
		"COLLABDOC_JWT_ISSUER",
		"COLLABDOC_JWT_AUDIENCE",
		"COLLABDOC_SENDGRID_API_KEY",
		"COLLABDOC_EMAIL_FROM",
		"COLLABDOC_EMAIL_FROM_NAME",
	} {
		if strings.TrimSpace(required[key]) == "" {
			return fmt.Errorf("config: %s is required", key)
		}
	}
	return nil
}

func getenvDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func requirePositiveInt(key string) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, fmt.Errorf("config: %s is required", key)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer: %w", key, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("config: %s must be positive", key)
	}
	return v, nil
}

func positiveIntDefault(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer: %w", key, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("config: %s must be positive", key)
	}
	return v, nil
}

func parseBool(raw string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	return err == nil && v
}
