package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port       string
	RedisAddr  string
	ResultTTL  time.Duration
	WindowSize int
}

func Load() Config {
	return Config{
		Port:       envOrDefault("PORT", "8000"),
		RedisAddr:  os.Getenv("REDIS_ADDR"),
		ResultTTL:  parseDuration(os.Getenv("RESULT_TTL"), 5*time.Minute),
		WindowSize: parsePositiveInt(os.Getenv("WINDOW_SIZE"), 20),
	}
}

func (c Config) Addr() string {
	return ":" + c.Port
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func parsePositiveInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
