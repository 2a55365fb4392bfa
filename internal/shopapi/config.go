package shopapi

import (
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/creditbook/internal/notify"
)

const (
	defaultListenAddr      = ":8080"
	defaultAllowedOrigin   = "http://localhost:8081"
	defaultPIN             = "1234"
	defaultSessionIssuer   = "creditbook"
	defaultSessionCookie   = "creditbook_session"
	defaultSessionTTL      = 12 * time.Hour
	defaultShutdownTimeout = 5 * time.Second
	minimumPINLength       = 4
)

// Config aggregates runtime settings for the shop HTTP API.
type Config struct {
	ListenAddr        string
	AllowedOrigins    []string
	PIN               string
	SessionSigningKey string
	SessionIssuer     string
	SessionCookieName string
	SessionTTL        time.Duration
	SecureCookies     bool
	ShopName          string
	CountryCode       string
	Location          *time.Location
	ShutdownTimeout   time.Duration
}

// Validate fills defaults and ensures the configuration contains sane values.
func (cfg *Config) Validate() error {
	cfg.ListenAddr = defaultIfEmpty(cfg.ListenAddr, defaultListenAddr)
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{defaultAllowedOrigin}
	}
	cfg.PIN = defaultIfEmpty(cfg.PIN, defaultPIN)
	cfg.SessionIssuer = defaultIfEmpty(cfg.SessionIssuer, defaultSessionIssuer)
	cfg.SessionCookieName = defaultIfEmpty(cfg.SessionCookieName, defaultSessionCookie)
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	cfg.ShopName = defaultIfEmpty(cfg.ShopName, notify.DefaultShopName)
	cfg.CountryCode = defaultIfEmpty(cfg.CountryCode, notify.DefaultCountryCode)
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if len(strings.TrimSpace(cfg.PIN)) < minimumPINLength {
		return fmt.Errorf("pin must have at least %d characters", minimumPINLength)
	}
	if len(cfg.SessionSigningKey) == 0 {
		return fmt.Errorf("jwt signing key is required")
	}
	return nil
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// ParseAllowedOrigins splits comma-delimited origins into a slice.
func ParseAllowedOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}
