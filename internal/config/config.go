package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/bannerbuildr/internal/aiconnectors"
	"github.com/bannerbuildr/internal/assets"
)

// EnvPrefix prefixes every environment override, e.g. BANNERBUILDR_AI_API_KEY
// sets ai.api_key.
const EnvPrefix = "BANNERBUILDR_"

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Log      LogConfig      `koanf:"log"`
	Template TemplateConfig `koanf:"template"`
	AI       AIConfig       `koanf:"ai"`
	Sheets   SheetsConfig   `koanf:"sheets"`
	Preview  PreviewConfig  `koanf:"preview"`
	Archive  ArchiveConfig  `koanf:"archive"`
}

type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// Address is the listen address.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type TemplateConfig struct {
	EntryName      string `koanf:"entry_name"`
	ConfigScript   string `koanf:"config_script"`
	DefaultWidth   int    `koanf:"default_width"`
	DefaultHeight  int    `koanf:"default_height"`
	BaseFolderPath string `koanf:"base_folder_path"`
}

type AIConfig struct {
	Provider       string  `koanf:"provider"`
	Model          string  `koanf:"model"`
	APIKey         string  `koanf:"api_key"`
	BaseURL        string  `koanf:"base_url"`
	Temperature    float64 `koanf:"temperature"`
	MaxTokens      int     `koanf:"max_tokens"`
	TimeoutSeconds int     `koanf:"timeout_seconds"`
	MaxRetries     int     `koanf:"max_retries"`
}

// Timeout is the per-request inference timeout.
func (a AIConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// Enabled reports whether a name inference provider is configured.
func (a AIConfig) Enabled() bool {
	return strings.TrimSpace(a.Provider) != ""
}

type SheetsConfig struct {
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	TimeoutSeconds    int     `koanf:"timeout_seconds"`
	ExportURL         string  `koanf:"export_url"`
	// DataDir is the root for local workbook and CSV sources.
	DataDir string `koanf:"data_dir"`
}

// Timeout is the per-request fetch timeout.
func (s SheetsConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

type PreviewConfig struct {
	Strategy      string `koanf:"strategy"`
	HandlePrefix  string `koanf:"handle_prefix"`
	ServedPrefix  string `koanf:"served_prefix"`
	AssetBasePath string `koanf:"asset_base_path"`
	MaxParallel   int    `koanf:"max_parallel"`
}

type ArchiveConfig struct {
	MaxWorkers   int    `koanf:"max_workers"`
	MaxRetries   int    `koanf:"max_retries"`
	FetchBaseURL string `koanf:"fetch_base_url"`
}

// Defaults returns the built-in configuration values.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"server.host":                "",
		"server.port":                8888,
		"log.level":                  "info",
		"log.format":                 "pretty",
		"template.entry_name":        "index.html",
		"template.config_script":     "Dynamic.js",
		"template.default_width":     300,
		"template.default_height":    250,
		"ai.temperature":             0.1,
		"ai.max_tokens":              1024,
		"ai.timeout_seconds":         60,
		"ai.max_retries":             3,
		"sheets.requests_per_second": 2.0,
		"sheets.timeout_seconds":     30,
		"sheets.data_dir":            ".",
		"preview.strategy":           "ephemeral",
		"preview.handle_prefix":      assets.DefaultHandlePrefix,
		"preview.served_prefix":      assets.DefaultServedPrefix,
		"preview.asset_base_path":    assets.DefaultAssetBasePath,
		"preview.max_parallel":       assets.DefaultMaxParallel,
		"archive.max_workers":        4,
		"archive.max_retries":        2,
	}
}

// LoadConfig loads the configuration from a file
func LoadConfig(configPath string) (*Config, error) {
	var k = koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		defaultPaths := []string{"./bannerbuildr.toml", "$HOME/.bannerbuildr.toml"}
		for _, path := range defaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	// BANNERBUILDR_SECTION_KEY_NAME -> section.key_name
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("error loading environment: %w", err)
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	return &config, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.Replace(s, "_", ".", 1)
}

const sampleConfig = `# bannerbuildr configuration

[server]
port = 8888

[log]
level = "info"    # trace, debug, info, warn, error
format = "pretty" # pretty or json

[template]
entry_name = "index.html"
config_script = "Dynamic.js"
default_width = 300
default_height = 250
# base_folder_path = "images/"

[ai]
provider = "gemini" # openai, gemini, claude, cohere, ollama
model = "gemini-2.5-flash"
api_key = "your-api-key"
temperature = 0.1
timeout_seconds = 60
max_retries = 3

[sheets]
requests_per_second = 2.0
timeout_seconds = 30
data_dir = "."

[preview]
strategy = "ephemeral" # ephemeral or served
max_parallel = 8

[archive]
max_workers = 4
max_retries = 2
# fetch_base_url = "http://localhost:8888/api/v1/download"
`

// InitConfig initializes a new configuration file
func InitConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}
	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}

// Validate validates the configuration
func Validate(config *Config) error {
	var errs []error

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port %d is out of range", config.Server.Port))
	}

	switch strings.ToLower(config.Log.Format) {
	case "pretty", "json":
	default:
		errs = append(errs, fmt.Errorf("log format must be pretty or json, got %q", config.Log.Format))
	}

	if strings.TrimSpace(config.Template.EntryName) == "" {
		errs = append(errs, errors.New("template entry_name is required"))
	}
	if strings.TrimSpace(config.Template.ConfigScript) == "" {
		errs = append(errs, errors.New("template config_script is required"))
	}
	if config.Template.DefaultWidth <= 0 || config.Template.DefaultHeight <= 0 {
		errs = append(errs, errors.New("template default dimensions must be positive"))
	}

	if config.AI.Enabled() {
		provider, err := aiconnectors.ParseProvider(config.AI.Provider)
		if err != nil {
			errs = append(errs, err)
		} else if provider.RequiresAPIKey() && config.AI.APIKey == "" {
			errs = append(errs, fmt.Errorf("%s api_key is required", provider))
		}
	}

	if config.Sheets.RequestsPerSecond <= 0 {
		errs = append(errs, errors.New("sheets requests_per_second must be positive"))
	}

	if _, err := assets.ParseStrategy(config.Preview.Strategy); err != nil {
		errs = append(errs, err)
	}

	if config.Archive.MaxWorkers <= 0 {
		errs = append(errs, errors.New("archive max_workers must be positive"))
	}

	return errors.Join(errs...)
}
