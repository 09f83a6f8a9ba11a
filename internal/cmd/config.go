package main

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the application config file. Environment variables override the
// connection-level settings (DB_*, NATS_URL, PORT).
type Config struct {
	Lobby struct {
		RequiredPlayers        int `yaml:"required_players"`
		DefaultDurationMinutes int `yaml:"default_duration_minutes"`
		StartCountdownSeconds  int `yaml:"start_countdown_seconds"`
		TeleportCountdownSecs  int `yaml:"teleport_countdown_seconds"`
	} `yaml:"lobby"`
	GamesFile string `yaml:"games_file"`
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if config.Lobby.RequiredPlayers <= 0 {
		config.Lobby.RequiredPlayers = 6
	}
	if config.Lobby.DefaultDurationMinutes <= 0 {
		config.Lobby.DefaultDurationMinutes = 3
	}
	if config.Lobby.StartCountdownSeconds <= 0 {
		config.Lobby.StartCountdownSeconds = 10
	}
	if config.Lobby.TeleportCountdownSecs <= 0 {
		config.Lobby.TeleportCountdownSecs = 60
	}
	if config.GamesFile == "" {
		config.GamesFile = "games.yaml"
	}
	return &config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
