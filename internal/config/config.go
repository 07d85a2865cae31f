package config

import (
	"os"
	"strconv"
)

type Config struct {
	Env      string
	HTTPPort string

	// DATABASE_URL empty selects the embedded sqlite store at SQLitePath.
	DatabaseURL string
	SQLitePath  string

	CatalogPath string
	ProviderURL string

	JWTSecret string
	JWTIssuer string
	RateRPS   int

	// Initial grant applied when an account is provisioned.
	InitialCredits int64
	InitialCoins   int64
}

func Load() Config {
	return Config{
		Env:            get("APP_ENV", "dev"),
		HTTPPort:       get("HTTP_PORT", "8080"),
		DatabaseURL:    get("DATABASE_URL", ""),
		SQLitePath:     get("SQLITE_PATH", "credits.db"),
		CatalogPath:    get("CATALOG_PATH", ""),
		ProviderURL:    get("PROVIDER_URL", ""),
		JWTSecret:      get("JWT_SECRET", "changeme-secret"),
		JWTIssuer:      get("JWT_ISSUER", "credits-backend"),
		RateRPS:        getInt("RATE_RPS", 100),
		InitialCredits: getInt64("INITIAL_CREDITS", 100),
		InitialCoins:   getInt64("INITIAL_COINS", 50),
	}
}

func get(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}
