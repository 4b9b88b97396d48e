package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// PermsCode - Minimal perms code for the bot to work in a channel
const PermsCode int = 67628097

// Emojis for request moderation

// ApproveReaction - Approve role request reaction
const ApproveReaction string = "approve:769004759259545610"

// DenyReaction - Deny role request reaction
const DenyReaction string = "deny:769004759482499124"

// GreenTick - Rendered approve emoji, prefixes success replies
const GreenTick string = "<:approve:769004759259545610>"

// RedTick - Rendered deny emoji, prefixes failure replies
const RedTick string = "<:deny:769004759482499124>"

// HideJoinsCommandDelay - Delay before a hidden join command message is deleted
const HideJoinsCommandDelay time.Duration = 5 * time.Second

// HideJoinsReplyDelay - Delay before a reply to a hidden join command is deleted
const HideJoinsReplyDelay time.Duration = 15 * time.Second

// Config - Runtime settings loaded from the environment
type Config struct {
	Token         string        `env:"BOT_TOKEN,required"`
	Prefix        string        `env:"BOT_PREFIX" envDefault:"!"`
	DatabasePath  string        `env:"DATABASE_PATH" envDefault:"data/data.db"`
	RequestTTL    time.Duration `env:"REQUEST_TTL" envDefault:"24h"`
	SweepPeriod   time.Duration `env:"SWEEP_PERIOD" envDefault:"10m"`
	RateLimitMax  int           `env:"RATELIMIT_MAX" envDefault:"21"`
	RetainExpired bool          `env:"RETAIN_EXPIRED" envDefault:"false"`
}

// Load - Read .env if present and parse the environment
func Load() (Config, error) {
	// A missing .env is fine, the environment may be set directly
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
