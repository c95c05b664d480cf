package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string
	ServerPort  int

	DiscordToken              string
	DiscordGuildID            string
	DiscordAnnounceChannelIDs []string
	DiscordVoiceCategoryID    string

	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicBaseURL   string

	SignupFormsDir string
}

// Load reads configuration from environment variables. A .env file is
// loaded first when present; its absence is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		DiscordToken:           os.Getenv("DISCORD_TOKEN"),
		DiscordGuildID:         os.Getenv("DISCORD_GUILD_ID"),
		DiscordVoiceCategoryID: os.Getenv("DISCORD_VOICE_CATEGORY_ID"),
		R2AccountID:            os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:          os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey:      os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2BucketName:           os.Getenv("R2_BUCKET_NAME"),
		R2PublicBaseURL:        os.Getenv("R2_PUBLIC_BASE_URL"),
		SignupFormsDir:         os.Getenv("SIGNUP_FORMS_DIR"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}
	if cfg.DiscordToken == "" {
		return nil, fmt.Errorf("DISCORD_TOKEN environment variable is not set")
	}
	if cfg.DiscordGuildID == "" {
		return nil, fmt.Errorf("DISCORD_GUILD_ID environment variable is not set")
	}

	for _, id := range strings.Split(os.Getenv("DISCORD_ANNOUNCE_CHANNEL_IDS"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			cfg.DiscordAnnounceChannelIDs = append(cfg.DiscordAnnounceChannelIDs, id)
		}
	}
	if len(cfg.DiscordAnnounceChannelIDs) == 0 {
		return nil, fmt.Errorf("DISCORD_ANNOUNCE_CHANNEL_IDS environment variable is not set")
	}

	if cfg.SignupFormsDir == "" {
		cfg.SignupFormsDir = "signup_forms"
	}

	portStr := os.Getenv("SERVER_PORT")
	if portStr == "" {
		portStr = "8080"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT environment variable: %w", err)
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}
	cfg.ServerPort = port

	return cfg, nil
}
