package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	HTTPPort       string
	BackendURL     string
	BackendTimeout time.Duration
	AllowedOrigins []string
}

func LoadConfig() Config {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, using environment")
	}

	return Config{
		HTTPPort:       getEnv("HTTPPORT", "3333"),
		BackendURL:     getEnv("BACKENDURL", "http://localhost:7000/api/v1/challenges/rpc"),
		BackendTimeout: time.Duration(getEnvInt("BACKENDTIMEOUTSECONDS", 10)) * time.Second,
		AllowedOrigins: strings.Split(getEnv("ALLOWEDORIGINS", "http://localhost:3000"), ","),
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
