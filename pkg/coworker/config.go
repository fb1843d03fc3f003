// Package coworker wires the voice session, tool dispatch and operator UI
// into one application.
package coworker

import (
	"strings"
	"time"

	"github.com/teslashibe/go-coworker/internal/config"
	"github.com/teslashibe/go-coworker/pkg/audioio"
	"github.com/teslashibe/go-coworker/pkg/chat"
	"github.com/teslashibe/go-coworker/pkg/session"
	"github.com/teslashibe/go-coworker/pkg/tools"
)

// Default configuration values.
const (
	DefaultPublicURL     = "http://localhost:8501"
	DefaultAirtableTable = "Employees"
	DefaultPlayer        = "mpg321 -q -"
	DefaultWAVPlayer     = "aplay -q -"
)

// Config holds all application configuration.
// Flag parsing is done in cmd/coworker/main.go; this struct is data only.
type Config struct {
	Debug bool

	// Web server.
	Web          bool
	Port         string
	PublicURL    string
	StaticDir    string
	RequireLogin bool

	// Terminal reads operator lines from stdin and runs one session.
	Terminal bool

	// Voice service.
	EVIConfigID      string
	HumeAPIKey       string
	SystemPrompt     string
	EnableAudio      bool
	WAVPlayer        string
	HandshakeTimeout time.Duration

	// Microphone.
	AudioBackend     audioio.Backend
	StreamMicrophone bool

	// Start-interaction prelude.
	Prelude        bool
	RecordDuration time.Duration
	OpenAIKey      string
	LMNTKey        string
	LMNTVoice      string
	Player         string

	// Tools.
	ToolTimeout        time.Duration
	GoogleClientID     string
	GoogleClientSecret string
	CalendarTokenPath  string
	AirtableToken      string
	AirtableBaseID     string
	AirtableTable      string

	// Accounts.
	DatabaseURL string
	RedisURL    string
}

// DefaultConfig returns defaults for every optional setting.
func DefaultConfig() Config {
	return Config{
		Web:              true,
		Port:             config.DefaultPort,
		PublicURL:        DefaultPublicURL,
		RequireLogin:     true,
		SystemPrompt:     chat.DefaultSystemPrompt,
		WAVPlayer:        DefaultWAVPlayer,
		HandshakeTimeout: session.DefaultHandshakeTimeout,
		AudioBackend:     audioio.BackendAuto,
		StreamMicrophone: true,
		Prelude:          true,
		RecordDuration:   audioio.DefaultRecordDuration,
		Player:           DefaultPlayer,
		ToolTimeout:      tools.DefaultTimeout,
		AirtableTable:    DefaultAirtableTable,
	}
}

// LoadEnvConfig applies environment variables. Call it after flag parsing.
func (c *Config) LoadEnvConfig() {
	c.EVIConfigID = config.String("EVI_CONFIG_ID", c.EVIConfigID)
	c.HumeAPIKey = config.String("HUME_API_KEY", c.HumeAPIKey)
	c.OpenAIKey = config.String("OPENAI_API_KEY", c.OpenAIKey)
	c.LMNTKey = config.String("LMNT_API_KEY", c.LMNTKey)
	c.LMNTVoice = config.String("LMNT_VOICE", c.LMNTVoice)
	c.GoogleClientID = config.String("GOOGLE_CLIENT_ID", c.GoogleClientID)
	c.GoogleClientSecret = config.String("GOOGLE_CLIENT_SECRET", c.GoogleClientSecret)
	c.AirtableToken = config.String("AIRTABLE_TOKEN", c.AirtableToken)
	c.AirtableBaseID = config.String("AIRTABLE_BASE_ID", c.AirtableBaseID)
	c.AirtableTable = config.String("AIRTABLE_TABLE", c.AirtableTable)
	c.DatabaseURL = config.String("DATABASE_URL", c.DatabaseURL)
	c.RedisURL = config.String("REDIS_URL", c.RedisURL)
	c.Port = config.String("PORT", c.Port)
	c.PublicURL = config.String("PUBLIC_URL", c.PublicURL)
	c.HandshakeTimeout = config.Duration("EVI_HANDSHAKE_TIMEOUT", c.HandshakeTimeout)
	c.ToolTimeout = config.Duration("TOOL_TIMEOUT", c.ToolTimeout)
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.EVIConfigID == "" {
		return &config.Error{Key: "EVI_CONFIG_ID", Message: "EVI config id is required"}
	}
	if c.HumeAPIKey == "" {
		return &config.Error{Key: "HUME_API_KEY", Message: "Hume API key is required"}
	}
	if c.Prelude && c.RecordDuration <= 0 {
		return &config.Error{Key: "RecordDuration", Message: "record duration must be positive"}
	}
	return nil
}

// redirectURL joins the public base URL with path.
func (c *Config) redirectURL(path string) string {
	return strings.TrimSuffix(c.PublicURL, "/") + path
}

// command splits a player command line.
func command(line string) []string {
	return strings.Fields(line)
}
