package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// ConfigFileName is the JSON file Load looks for in the config directory.
const ConfigFileName = "torcs_driver.cfg.json"

// Validation errors returned by SessionConfig.Validate.
var (
	ErrInvalidPort     = errors.New("port must be between 1 and 65535")
	ErrInvalidStage    = errors.New("stage must be 0 (warm-up), 1 (qualifying), 2 (race) or 3 (unknown)")
	ErrInvalidSteps    = errors.New("steps must not be negative")
	ErrInvalidEpisodes = errors.New("episodes must be at least 1")
	ErrInvalidSpeed    = errors.New("max speed must be positive")
	ErrEmptyHost       = errors.New("host must not be empty")
)

// SessionConfig holds the connection and run settings. It is read once at
// startup and not changed afterwards.
type SessionConfig struct {
	Host           string        `json:"host" mapstructure:"host"`
	Port           int           `json:"port" mapstructure:"port"`
	ID             string        `json:"id" mapstructure:"id"`
	Stage          int           `json:"stage" mapstructure:"stage"`
	MaxEpisodes    int           `json:"maxEpisodes" mapstructure:"maxEpisodes"`
	MaxSteps       int           `json:"maxSteps" mapstructure:"maxSteps"`
	Track          string        `json:"track" mapstructure:"track"`
	MaxSpeed       float64       `json:"maxSpeed" mapstructure:"maxSpeed"`
	Debug          bool          `json:"debug" mapstructure:"debug"`
	ReceiveTimeout time.Duration `json:"receiveTimeout" mapstructure:"receiveTimeout"`
	RetryBudget    int           `json:"retryBudget" mapstructure:"retryBudget"`
}

// Validate rejects settings that would make the session unusable.
func (c SessionConfig) Validate() error {
	var errs []error
	if c.Host == "" {
		errs = append(errs, ErrEmptyHost)
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("%w: got %d", ErrInvalidPort, c.Port))
	}
	if c.Stage < 0 || c.Stage > 3 {
		errs = append(errs, fmt.Errorf("%w: got %d", ErrInvalidStage, c.Stage))
	}
	if c.MaxSteps < 0 {
		errs = append(errs, fmt.Errorf("%w: got %d", ErrInvalidSteps, c.MaxSteps))
	}
	if c.MaxEpisodes < 1 {
		errs = append(errs, fmt.Errorf("%w: got %d", ErrInvalidEpisodes, c.MaxEpisodes))
	}
	if c.MaxSpeed <= 0 {
		errs = append(errs, fmt.Errorf("%w: got %g", ErrInvalidSpeed, c.MaxSpeed))
	}
	return errors.Join(errs...)
}

// Address returns host:port.
func (c SessionConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SimulatorConfig holds the simulator process settings
type SimulatorConfig struct {
	Managed        bool          `json:"managed" mapstructure:"managed"`
	Binary         string        `json:"binary" mapstructure:"binary"`
	Args           []string      `json:"args" mapstructure:"args"`
	AutostartShell string        `json:"autostartScript" mapstructure:"autostartScript"`
	SettleDelay    time.Duration `json:"settleDelay" mapstructure:"settleDelay"`
	EpisodeDelay   time.Duration `json:"episodeDelay" mapstructure:"episodeDelay"`
}

// RecorderConfig holds the episode recorder settings
type RecorderConfig struct {
	Enabled          bool   `json:"enabled" mapstructure:"enabled"`
	IgnoreSteps      int    `json:"ignoreSteps" mapstructure:"ignoreSteps"`
	FlushEvery       int    `json:"flushEvery" mapstructure:"flushEvery"`
	GoodEpisodeSteps int    `json:"goodEpisodeSteps" mapstructure:"goodEpisodeSteps"`
	TrainingLog      string `json:"trainingLog" mapstructure:"trainingLog"`
	Upload           bool   `json:"upload" mapstructure:"upload"`
	Tag              string `json:"tag" mapstructure:"tag"`
}

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds SQLite storage backend settings
type SQLiteConfig struct {
	Path         string        `json:"path" mapstructure:"path"`
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
}

// PostgresConfig holds the Postgres connection settings
type PostgresConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// WebSocketConfig holds the streaming sink settings
type WebSocketConfig struct {
	URL    string `json:"url" mapstructure:"url"`
	Secret string `json:"secret" mapstructure:"secret"`
}

// StorageConfig selects and configures the episode storage backend
type StorageConfig struct {
	Type      string          `json:"type" mapstructure:"type"`
	Memory    MemoryConfig    `json:"memory" mapstructure:"memory"`
	SQLite    SQLiteConfig    `json:"sqlite" mapstructure:"sqlite"`
	Postgres  PostgresConfig  `json:"postgres" mapstructure:"postgres"`
	WebSocket WebSocketConfig `json:"websocket" mapstructure:"websocket"`
}

// InfluxConfig holds the per-step telemetry sink settings
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
	Bucket   string `json:"bucket" mapstructure:"bucket"`
}

// APIConfig holds the training server settings
type APIConfig struct {
	ServerURL string        `json:"serverUrl" mapstructure:"serverUrl"`
	APIKey    string        `json:"apiKey" mapstructure:"apiKey"`
	Timeout   time.Duration `json:"timeout" mapstructure:"timeout"`
}

// PolicyConfig selects the driving policy
type PolicyConfig struct {
	Learned   bool   `json:"learned" mapstructure:"learned"`
	ModelPath string `json:"model" mapstructure:"model"`
	ModelDir  string `json:"modelDir" mapstructure:"modelDir"`
	Sync      bool   `json:"sync" mapstructure:"sync"`
}

// OTelConfig holds the metrics export settings
type OTelConfig struct {
	Enabled        bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName    string        `json:"serviceName" mapstructure:"serviceName"`
	ExportInterval time.Duration `json:"exportInterval" mapstructure:"exportInterval"`
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	setDefaults()

	viper.SetConfigName(ConfigFileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./torcslogs")

	viper.SetDefault("session.host", "localhost")
	viper.SetDefault("session.port", 3001)
	viper.SetDefault("session.id", "SCR")
	viper.SetDefault("session.stage", 3)
	viper.SetDefault("session.maxEpisodes", 1)
	viper.SetDefault("session.maxSteps", 100000)
	viper.SetDefault("session.track", "unknown")
	viper.SetDefault("session.maxSpeed", 30.0)
	viper.SetDefault("session.debug", false)
	viper.SetDefault("session.receiveTimeout", "1s")
	viper.SetDefault("session.retryBudget", 5)

	viper.SetDefault("simulator.managed", false)
	viper.SetDefault("simulator.binary", "torcs")
	viper.SetDefault("simulator.args", []string{"-nofuel", "-nodamage", "-nolaptime", "-vision"})
	viper.SetDefault("simulator.autostartScript", "autostart.sh")
	viper.SetDefault("simulator.settleDelay", "1s")
	viper.SetDefault("simulator.episodeDelay", "1s")

	viper.SetDefault("recorder.enabled", true)
	viper.SetDefault("recorder.ignoreSteps", 12)
	viper.SetDefault("recorder.flushEvery", 5000)
	viper.SetDefault("recorder.goodEpisodeSteps", 1400)
	viper.SetDefault("recorder.trainingLog", "training_log.txt")
	viper.SetDefault("recorder.upload", false)
	viper.SetDefault("recorder.tag", "imitation")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./datasets")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.path", "./datasets/episodes.db")
	viper.SetDefault("storage.sqlite.dumpInterval", "1m")
	viper.SetDefault("storage.postgres.host", "localhost")
	viper.SetDefault("storage.postgres.port", "5432")
	viper.SetDefault("storage.postgres.username", "postgres")
	viper.SetDefault("storage.postgres.password", "postgres")
	viper.SetDefault("storage.postgres.database", "torcs")
	viper.SetDefault("storage.websocket.url", "ws://localhost:5000/api/v1/stream")
	viper.SetDefault("storage.websocket.secret", "")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "torcs-driver")
	viper.SetDefault("influx.bucket", "telemetry")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "torcs-driver")
	viper.SetDefault("otel.exportInterval", "1m")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("api.serverUrl", "http://localhost:5000")
	viper.SetDefault("api.apiKey", "")
	viper.SetDefault("api.timeout", "30s")

	viper.SetDefault("policy.learned", false)
	viper.SetDefault("policy.model", "")
	viper.SetDefault("policy.modelDir", "./models")
	viper.SetDefault("policy.sync", false)
}

// GetSessionConfig returns the session settings.
func GetSessionConfig() SessionConfig {
	return SessionConfig{
		Host:           viper.GetString("session.host"),
		Port:           viper.GetInt("session.port"),
		ID:             viper.GetString("session.id"),
		Stage:          viper.GetInt("session.stage"),
		MaxEpisodes:    viper.GetInt("session.maxEpisodes"),
		MaxSteps:       viper.GetInt("session.maxSteps"),
		Track:          viper.GetString("session.track"),
		MaxSpeed:       viper.GetFloat64("session.maxSpeed"),
		Debug:          viper.GetBool("session.debug"),
		ReceiveTimeout: viper.GetDuration("session.receiveTimeout"),
		RetryBudget:    viper.GetInt("session.retryBudget"),
	}
}

// GetSimulatorConfig returns the simulator process settings.
func GetSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		Managed:        viper.GetBool("simulator.managed"),
		Binary:         viper.GetString("simulator.binary"),
		Args:           viper.GetStringSlice("simulator.args"),
		AutostartShell: viper.GetString("simulator.autostartScript"),
		SettleDelay:    viper.GetDuration("simulator.settleDelay"),
		EpisodeDelay:   viper.GetDuration("simulator.episodeDelay"),
	}
}

// GetRecorderConfig returns the recorder settings.
func GetRecorderConfig() RecorderConfig {
	return RecorderConfig{
		Enabled:          viper.GetBool("recorder.enabled"),
		IgnoreSteps:      viper.GetInt("recorder.ignoreSteps"),
		FlushEvery:       viper.GetInt("recorder.flushEvery"),
		GoodEpisodeSteps: viper.GetInt("recorder.goodEpisodeSteps"),
		TrainingLog:      viper.GetString("recorder.trainingLog"),
		Upload:           viper.GetBool("recorder.upload"),
		Tag:              viper.GetString("recorder.tag"),
	}
}

// GetStorageConfig returns the storage backend settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			Path:         viper.GetString("storage.sqlite.path"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
		Postgres: PostgresConfig{
			Host:     viper.GetString("storage.postgres.host"),
			Port:     viper.GetString("storage.postgres.port"),
			Username: viper.GetString("storage.postgres.username"),
			Password: viper.GetString("storage.postgres.password"),
			Database: viper.GetString("storage.postgres.database"),
		},
		WebSocket: WebSocketConfig{
			URL:    viper.GetString("storage.websocket.url"),
			Secret: viper.GetString("storage.websocket.secret"),
		},
	}
}

// GetInfluxConfig returns the InfluxDB settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

// GetAPIConfig returns the training server settings.
func GetAPIConfig() APIConfig {
	return APIConfig{
		ServerURL: viper.GetString("api.serverUrl"),
		APIKey:    viper.GetString("api.apiKey"),
		Timeout:   viper.GetDuration("api.timeout"),
	}
}

// GetPolicyConfig returns the policy selection.
func GetPolicyConfig() PolicyConfig {
	return PolicyConfig{
		Learned:   viper.GetBool("policy.learned"),
		ModelPath: viper.GetString("policy.model"),
		ModelDir:  viper.GetString("policy.modelDir"),
		Sync:      viper.GetBool("policy.sync"),
	}
}

// GetOTelConfig returns the metrics export settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:        viper.GetBool("otel.enabled"),
		ServiceName:    viper.GetString("otel.serviceName"),
		ExportInterval: viper.GetDuration("otel.exportInterval"),
	}
}
