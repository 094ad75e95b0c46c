// Package telegram provides a client for the Telegram gift endpoints:
// per-unit collectible pages and the bot getAvailableGifts listing.
package telegram

import (
	"time"

	"github.com/gifttrack/gifttrack-go/internal/conf"
)

// Owner is the resolved public identity attached to a collectible unit.
type Owner struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"displayName"`
	Username    string `json:"username,omitempty"`
}

// UnitRecord is the raw per-unit record returned by the source for one
// numbered collectible. Owner, OwnerName and Address may all be empty when
// the holder hides their identity.
type UnitRecord struct {
	Owner     *Owner `json:"owner,omitempty"`
	OwnerName string `json:"ownerName,omitempty"` // plain-text name when no account is linked
	Address   string `json:"address,omitempty"`   // blockchain address for on-chain holders
	Num       int    `json:"num"`
	Slug      string `json:"slug"`
	Model     string `json:"model"`
	Pattern   string `json:"pattern"`
	Backdrop  string `json:"backdrop"`
	ModelURL  string `json:"modelUrl,omitempty"`
	Issued    int    `json:"issued"`
	Total     int    `json:"total"`
}

// ListingGift is one entry of the bot getAvailableGifts listing. Gifts
// without a remaining count are unlimited and not tracked.
type ListingGift struct {
	ID             string  `json:"id"`
	Emoji          string  `json:"emoji"`
	StarCount      int     `json:"star_count"`
	RemainingCount *int    `json:"remaining_count,omitempty"`
	TotalCount     int     `json:"total_count,omitempty"`
	Sticker        Sticker `json:"sticker"`
}

// Sticker carries the listing gift artwork metadata.
type Sticker struct {
	FileID string `json:"file_id"`
	Emoji  string `json:"emoji"`
}

// Config holds configuration for the Telegram gift client.
type Config struct {
	BaseURL     string        `json:"base_url"`     // per-unit endpoint root
	BotBaseURL  string        `json:"bot_base_url"` // bot API root
	BotToken    string        `json:"bot_token"`
	Timeout     time.Duration `json:"timeout"`
	CacheTTL    time.Duration `json:"cache_ttl"`
	RateLimitMS int           `json:"rate_limit_ms"` // Milliseconds between requests
	UserAgent   string        `json:"user_agent"`
}

// DefaultConfig returns the client defaults used for unset Config fields.
func DefaultConfig() Config {
	return Config{
		BaseURL:     "https://t.me/nft",
		BotBaseURL:  "https://api.telegram.org",
		Timeout:     10 * time.Second,
		CacheTTL:    15 * time.Minute,
		RateLimitMS: 100,
		UserAgent:   "GiftTrack-Go",
	}
}

// ConfigFromSettings maps the source settings onto a client Config. Unset
// fields keep their defaults.
func ConfigFromSettings(settings *conf.Settings) Config {
	config := DefaultConfig()
	source := &settings.Source

	if source.BaseURL != "" {
		config.BaseURL = source.BaseURL
	}
	if source.BotBaseURL != "" {
		config.BotBaseURL = source.BotBaseURL
	}
	config.BotToken = source.BotToken
	if source.Timeout > 0 {
		config.Timeout = time.Duration(source.Timeout) * time.Second
	}
	if source.RateLimitMS > 0 {
		config.RateLimitMS = source.RateLimitMS
	}
	if source.CacheTTL > 0 {
		config.CacheTTL = time.Duration(source.CacheTTL) * time.Minute
	}
	if source.UserAgent != "" {
		config.UserAgent = source.UserAgent
	}
	return config
}

// Error represents an API error response.
type Error struct {
	Description string `json:"description"`
	Status      int    `json:"-"`
}

func (e *Error) Error() string {
	return e.Description
}
