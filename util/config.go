package util

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port           string        `mapstructure:"PORT" validate:"required,number"`
	RedisAddress   string        `mapstructure:"REDIS_ADDR" validate:"omitempty,hostname_port"`
	RedisPassword  string        `mapstructure:"REDIS_PW"`
	AllowedOrigins []string      `mapstructure:"ALLOWED_ORIGINS" validate:"required,min=1,dive,required"`
	PingInterval   time.Duration `mapstructure:"PING_INTERVAL" validate:"min=1s"`
	MaxMissedPongs int           `mapstructure:"MAX_MISSED_PONGS" validate:"min=1"`
	DirectoryTTL   time.Duration `mapstructure:"ROOM_TTL" validate:"min=1s"`
	LogLevel       string        `mapstructure:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	Env            string        `mapstructure:"ENV" validate:"oneof=development production"`
}

// Defaults used when the matching environment variable is unset.
const (
	DefaultPort           = "4000"
	DefaultPingInterval   = 30 * time.Second
	DefaultMaxMissedPongs = 2
	DefaultDirectoryTTL   = 12 * time.Hour
)

func LoadConfig() (*Config, error) {
	godotenv.Load()

	config := &Config{
		Port:           getEnv("PORT", DefaultPort),
		RedisAddress:   os.Getenv("REDIS_ADDR"),
		RedisPassword:  os.Getenv("REDIS_PW"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "*")),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		Env:            getEnv("ENV", "production"),
	}

	var err error

	if config.PingInterval, err = getDuration("PING_INTERVAL", DefaultPingInterval); err != nil {
		return nil, err
	}

	if config.DirectoryTTL, err = getDuration("ROOM_TTL", DefaultDirectoryTTL); err != nil {
		return nil, err
	}

	if config.MaxMissedPongs, err = getInt("MAX_MISSED_PONGS", DefaultMaxMissedPongs); err != nil {
		return nil, err
	}

	if err := Validate.Struct(config); err != nil {
		return nil, err
	}

	return config, nil
}

// DirectoryEnabled reports whether a Redis room directory should be wired.
func (c *Config) DirectoryEnabled() bool {
	return c.RedisAddress != ""
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
