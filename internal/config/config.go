package config

import (
	"os"
	"strconv"
	"time"
)

type AppConfig struct {
	// Remote API
	BaseURL     string
	WSURL       string
	QRAuthority string

	// HTTP client
	RequestTimeout time.Duration
	UploadTimeout  time.Duration

	// Local storage
	VaultPath string

	// Dev server
	DevAddr       string
	DevJWTSecret  string
	DevAccessTTL  time.Duration
	DevRefreshTTL time.Duration
}

// Load loads environment variables into AppConfig.
func Load() AppConfig {
	return AppConfig{
		BaseURL:     getEnv("KSTU_API_BASE_URL", "https://api.kstu.kg"),
		WSURL:       getEnv("KSTU_WS_URL", "wss://api.kstu.kg/ws"),
		QRAuthority: getEnv("KSTU_QR_AUTHORITY", "qr.kstu.kg"),

		RequestTimeout: getEnvDuration("KSTU_REQUEST_TIMEOUT", 10*time.Second),
		UploadTimeout:  getEnvDuration("KSTU_UPLOAD_TIMEOUT", 30*time.Second),

		VaultPath: getEnv("KSTU_VAULT_PATH", defaultVaultPath()),

		DevAddr:       getEnv("DEV_ADDR", ":8010"),
		DevJWTSecret:  getEnv("DEV_JWT_SECRET", "dev-only-secret"),
		DevAccessTTL:  getEnvDuration("DEV_ACCESS_TTL", 15*time.Minute),
		DevRefreshTTL: getEnvDuration("DEV_REFRESH_TTL", 720*time.Hour),
	}
}

func defaultVaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "kstu-vault.db"
	}
	return dir + "/kstu-mobile/vault.db"
}

// --- Helper functions ---

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
