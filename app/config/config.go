package config

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

const (
	defaultPath = "config.yaml"

	defaultTemperature = 0.7
)

type Config struct {
	Log     Log     `yaml:"log"`
	HTTP    HTTP    `yaml:"http"`
	Model   Model   `yaml:"model"`
	Coach   Coach   `yaml:"coach"`
	Safety  Safety  `yaml:"safety"`
	Digest  Digest  `yaml:"digest"`
	Tools   Tools   `yaml:"tools"`
	Storage Storage `yaml:"storage"`
}

type Log struct {
	// Minimal console level: debug, info, warn or error
	Level string `yaml:"level" example:"debug" validate:"oneof=debug info warn error"`
	// Telegram logging config
	Telegram TelegramLog `yaml:"telegram"`
}

type TelegramLog struct {
	// Chat bot token, obtain it via BotFather
	Token string `yaml:"token" example:"1234567890:ABCdefGHIjklMNopQRstUVwxyZ-123456789"`
	// Chat ID to send messages to
	ChatID string `yaml:"chat_id" example:"1001234567890"`
}

type HTTP struct {
	// Address the API listens on
	Listen string `yaml:"listen" example:":8080" validate:"required"`
	// Upper bound for a single request, including every model round-trip of a turn
	RequestTimeout time.Duration `yaml:"request_timeout" example:"2m" validate:"gt=0"`
}

type Model struct {
	// Provider adapter: langchain, openai or mock
	Backend string `yaml:"backend" example:"langchain" validate:"oneof=langchain openai mock"`
	// OpenAI compatible base url
	BaseURL string `yaml:"base_url" example:"https://openrouter.ai/api/v1" validate:"required_unless=Backend mock"`
	// OpenAI token
	Token string `yaml:"token" example:"sk-proj-abc123456789DEF789ghi012JKL345mno678PQR901stu234VWX" validate:"required_unless=Backend mock"`
	// Model name
	Model string `yaml:"model" example:"gpt-4o-mini" validate:"required_unless=Backend mock"`
	// Sampling temperature
	Temperature float64 `yaml:"temperature" example:"0.7" validate:"gte=0,lte=2"`
	// Timeout of a single model round-trip
	Timeout time.Duration `yaml:"timeout" example:"30s" validate:"gt=0"`
	// Attempts per round-trip before the provider error is surfaced
	MaxAttempts int `yaml:"max_attempts" example:"2" validate:"gte=1"`
}

type Coach struct {
	// Maximum number of model round-trips in one turn
	MaxRounds int `yaml:"max_rounds" example:"6" validate:"gte=1"`
}

type Safety struct {
	// Phrases that flag a message as risk-indicating, matched case-insensitively
	Phrases []string `yaml:"phrases"`
	// How many premature answers are sent back to the model before the required tools are called directly
	RepromptAttempts int `yaml:"reprompt_attempts" example:"0" validate:"gte=0"`
	// Service type looked up when the safety sequence runs
	ServiceType string `yaml:"service_type" example:"hospital" validate:"oneof=hospital police doctor"`
}

type Digest struct {
	// Number of most recent mood entries and calendar events included
	Window int `yaml:"window" example:"5" validate:"gte=1"`
}

type Tools struct {
	// Timeout of a single tool invocation
	Timeout time.Duration `yaml:"timeout" example:"5s" validate:"gt=0"`
	// Attempts per tool call for retryable failures
	MaxAttempts int `yaml:"max_attempts" example:"3" validate:"gte=1"`
	// First retry delay, doubled on every attempt
	BackoffBase time.Duration `yaml:"backoff_base" example:"200ms" validate:"gt=0"`
	// Retry delay cap
	BackoffCap time.Duration `yaml:"backoff_cap" example:"2s" validate:"gtefield=BackoffBase"`
	// Location returned by getUserLocation
	Location Location `yaml:"location"`
	// Backend of findNearbyServices
	Directory Directory `yaml:"directory"`
}

type Location struct {
	City  string `yaml:"city" example:"Mountain View" validate:"required"`
	State string `yaml:"state" example:"CA" validate:"required"`
	Zip   string `yaml:"zip" example:"94043" validate:"required"`
}

type Directory struct {
	// static or mcp
	Backend string `yaml:"backend" example:"static" validate:"oneof=static mcp"`
	// MCP server used when backend is mcp
	MCP MCPServer `yaml:"mcp"`
}

type MCPServer struct {
	// Command starting the MCP server over stdio
	Command string `yaml:"command" example:"docker" validate:"required_if=Enabled true"`
	// Command arguments
	Args []string `yaml:"args" example:"run --rm -i directory-mcp"`
	// Name of the remote tool returning services
	Tool string `yaml:"tool" example:"find_services"`
	// Set by Load when the directory backend is mcp
	Enabled bool `yaml:"-"`
}

type Storage struct {
	// memory or sqlite
	Backend string `yaml:"backend" example:"sqlite" validate:"oneof=memory sqlite"`
	// SQLite database file
	Path string `yaml:"path" example:"data/sessions.db" validate:"required_if=Backend sqlite"`
}

func Load() (*Config, error) {
	return LoadFile(defaultPath)
}

func LoadFile(path string) (*Config, error) {
	// Zero is a valid temperature, so its default is set before parsing.
	result := Config{Model: Model{Temperature: defaultTemperature}}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, oops.Errorf("failed to read config file: %w", err)
	}

	if err = yaml.Unmarshal(data, &result); err != nil {
		return nil, oops.Errorf("failed to parse YAML config: %w", err)
	}

	applyDefaults(&result)

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(result); err != nil {
		return nil, oops.Errorf("failed to validate config: %w", err)
	}

	return &result, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "debug"
	}

	if cfg.HTTP.Listen == "" {
		cfg.HTTP.Listen = ":8080"
	}
	if cfg.HTTP.RequestTimeout == 0 {
		cfg.HTTP.RequestTimeout = 2 * time.Minute
	}

	if cfg.Model.Backend == "" {
		cfg.Model.Backend = "langchain"
	}
	if cfg.Model.Timeout == 0 {
		cfg.Model.Timeout = 30 * time.Second
	}
	if cfg.Model.MaxAttempts == 0 {
		cfg.Model.MaxAttempts = 2
	}

	if cfg.Coach.MaxRounds == 0 {
		cfg.Coach.MaxRounds = 6
	}

	if cfg.Safety.ServiceType == "" {
		cfg.Safety.ServiceType = "hospital"
	}

	if cfg.Digest.Window == 0 {
		cfg.Digest.Window = 5
	}

	if cfg.Tools.Timeout == 0 {
		cfg.Tools.Timeout = 5 * time.Second
	}
	if cfg.Tools.MaxAttempts == 0 {
		cfg.Tools.MaxAttempts = 3
	}
	if cfg.Tools.BackoffBase == 0 {
		cfg.Tools.BackoffBase = 200 * time.Millisecond
	}
	if cfg.Tools.BackoffCap == 0 {
		cfg.Tools.BackoffCap = 2 * time.Second
	}
	if cfg.Tools.Location == (Location{}) {
		cfg.Tools.Location = Location{City: "Mountain View", State: "CA", Zip: "94043"}
	}
	if cfg.Tools.Directory.Backend == "" {
		cfg.Tools.Directory.Backend = "static"
	}
	cfg.Tools.Directory.MCP.Enabled = cfg.Tools.Directory.Backend == "mcp"
	if cfg.Tools.Directory.MCP.Tool == "" {
		cfg.Tools.Directory.MCP.Tool = "find_services"
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "memory"
	}
}
