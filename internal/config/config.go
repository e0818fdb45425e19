// Package config loads narrator settings from the environment.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Engines and sinks accepted by TTS_ENGINE and PLAYBACK_SINK.
const (
	EnginePiper = "piper"
	EngineEdge  = "edge"
	EngineNone  = "none"

	SinkDiscord = "discord"
	SinkSpeaker = "speaker"
	SinkLog     = "log"
)

// Config holds all application configuration.
type Config struct {
	// Discord settings
	DiscordToken          string `env:"DISCORD_TOKEN"`
	GuildID               string `env:"GUILD_ID"`
	DefaultVoiceChannelID string `env:"DEFAULT_VOICE_CHANNEL_ID"`

	// HTTP settings
	HTTPPort       int    `env:"HTTP_PORT" envDefault:"8080"`
	BearerToken    string `env:"BEARER_TOKEN"`
	RateLimitRPM   int    `env:"RATE_LIMIT_RPM" envDefault:"60"`
	RateLimitBurst int    `env:"RATE_LIMIT_BURST" envDefault:"10"`

	// Voices
	NarratorVoice      string `env:"NARRATOR_VOICE" envDefault:"en-GB-RyanNeural"`
	PlayerVoice        string `env:"PLAYER_VOICE" envDefault:"en-US-AndrewNeural"`
	DefaultMaleVoice   string `env:"DEFAULT_MALE_VOICE" envDefault:"en-US-GuyNeural"`
	DefaultFemaleVoice string `env:"DEFAULT_FEMALE_VOICE" envDefault:"en-US-JennyNeural"`

	// TTS engine settings
	TTSEngine        string        `env:"TTS_ENGINE" envDefault:"edge"`
	PiperPath        string        `env:"PIPER_PATH" envDefault:"piper"`
	PiperModel       string        `env:"PIPER_MODEL"`
	SynthesisTimeout time.Duration `env:"SYNTHESIS_TIMEOUT" envDefault:"30s"`
	SynthCacheSize   int           `env:"SYNTH_CACHE_SIZE" envDefault:"256"`

	// Behavior settings
	MaxSegmentLength int           `env:"MAX_SEGMENT_LENGTH" envDefault:"400"`
	MaxTextLength    int           `env:"MAX_TEXT_LENGTH" envDefault:"8000"`
	QueueCapacity    int           `env:"QUEUE_CAPACITY" envDefault:"100"`
	DefaultTTL       time.Duration `env:"DEFAULT_TTL" envDefault:"0s"`
	AutoLeaveIdle    time.Duration `env:"AUTO_LEAVE_IDLE" envDefault:"5m"`
	FuzzyNames       bool          `env:"NARRATOR_FUZZY_NAMES" envDefault:"false"`

	// Roster
	RosterFile string `env:"ROSTER_FILE"`

	// ntfy feed settings; the feed is off while NTFY_TOPICS is empty
	NtfyServer       string        `env:"NTFY_SERVER" envDefault:"https://ntfy.sh"`
	NtfyTopics       []string      `env:"NTFY_TOPICS" envSeparator:","`
	NtfyPrefix       string        `env:"NTFY_PREFIX"`
	NtfyInterrupt    bool          `env:"NTFY_INTERRUPT" envDefault:"false"`
	NtfyDedupeWindow time.Duration `env:"NTFY_DEDUPE_WINDOW" envDefault:"0s"`

	// Logging settings
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat     string `env:"LOG_FORMAT" envDefault:"text"`
	LogFile       string `env:"LOG_FILE"`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"64"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"3"`
	LogMaxAgeDays int    `env:"LOG_MAX_AGE_DAYS" envDefault:"7"`

	MetricsEnabled bool   `env:"METRICS_ENABLED" envDefault:"false"`
	PlaybackSink   string `env:"PLAYBACK_SINK" envDefault:"discord"`
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// AuthDisabled returns true if bearer token authentication is disabled.
func (c *Config) AuthDisabled() bool {
	return c.BearerToken == ""
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, errors.New("HTTP_PORT must be between 1 and 65535"))
	}
	if c.MaxSegmentLength < 1 {
		errs = append(errs, errors.New("MAX_SEGMENT_LENGTH must be at least 1"))
	}
	if c.MaxTextLength < 1 {
		errs = append(errs, errors.New("MAX_TEXT_LENGTH must be at least 1"))
	}
	if c.QueueCapacity < 1 {
		errs = append(errs, errors.New("QUEUE_CAPACITY must be at least 1"))
	}
	if c.AutoLeaveIdle < 0 {
		errs = append(errs, errors.New("AUTO_LEAVE_IDLE must be non-negative"))
	}
	if c.DefaultTTL < 0 {
		errs = append(errs, errors.New("DEFAULT_TTL must be non-negative"))
	}
	if c.SynthesisTimeout <= 0 {
		errs = append(errs, errors.New("SYNTHESIS_TIMEOUT must be positive"))
	}
	if c.SynthCacheSize < 0 {
		errs = append(errs, errors.New("SYNTH_CACHE_SIZE must be non-negative"))
	}
	if len(c.NtfyTopics) > 0 && c.NtfyServer == "" {
		errs = append(errs, errors.New("NTFY_SERVER cannot be empty when NTFY_TOPICS is set"))
	}
	if c.NtfyDedupeWindow < 0 {
		errs = append(errs, errors.New("NTFY_DEDUPE_WINDOW must be non-negative"))
	}
	if c.RateLimitRPM < 0 || c.RateLimitBurst < 0 {
		errs = append(errs, errors.New("RATE_LIMIT_RPM and RATE_LIMIT_BURST must be non-negative"))
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.LogLevel) {
		errs = append(errs, errors.New("LOG_LEVEL must be one of: debug, info, warn, error"))
	}
	if !slices.Contains([]string{"text", "json"}, c.LogFormat) {
		errs = append(errs, errors.New("LOG_FORMAT must be one of: text, json"))
	}
	if !slices.Contains([]string{EnginePiper, EngineEdge, EngineNone}, c.TTSEngine) {
		errs = append(errs, errors.New("TTS_ENGINE must be one of: piper, edge, none"))
	}
	if c.TTSEngine == EnginePiper && c.PiperModel == "" {
		errs = append(errs, errors.New("PIPER_MODEL is required when TTS_ENGINE is piper"))
	}
	if !slices.Contains([]string{SinkDiscord, SinkSpeaker, SinkLog}, c.PlaybackSink) {
		errs = append(errs, errors.New("PLAYBACK_SINK must be one of: discord, speaker, log"))
	}

	return errors.Join(errs...)
}

// FeedTopics returns the configured ntfy topics with blanks removed.
func (c *Config) FeedTopics() []string {
	var topics []string
	for _, t := range c.NtfyTopics {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	return topics
}

// ValidateDiscord checks the settings the Discord sink needs.
func (c *Config) ValidateDiscord() error {
	var errs []error
	if c.DiscordToken == "" {
		errs = append(errs, errors.New("DISCORD_TOKEN is required for the discord sink"))
	}
	if c.GuildID == "" {
		errs = append(errs, errors.New("GUILD_ID is required for the discord sink"))
	}
	if c.DefaultVoiceChannelID == "" {
		errs = append(errs, errors.New("DEFAULT_VOICE_CHANNEL_ID is required for the discord sink"))
	}
	return errors.Join(errs...)
}
