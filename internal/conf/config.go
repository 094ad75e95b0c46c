// config.go: settings struct and functions to load and save the GiftTrack-Go configuration.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

//go:embed config.yaml
var configFiles embed.FS

// LogConfig defines the configuration for a log file
type LogConfig struct {
	Enabled  bool   // true to enable this log
	Path     string // path to log file
	Rotation RotationType
	MaxSize  int64 // max size in bytes for RotationSize
}

// RotationType defines different types of log rotations.
type RotationType string

const (
	RotationDaily  RotationType = "daily"
	RotationWeekly RotationType = "weekly"
	RotationSize   RotationType = "size"
)

// SQLiteSettings contains settings for the SQLite database output.
type SQLiteSettings struct {
	Enabled bool   // true to enable SQLite output
	Path    string // path to the SQLite database file
}

// MySQLSettings contains settings for the MySQL database output.
type MySQLSettings struct {
	Enabled  bool   // true to enable MySQL output
	Username string // MySQL username
	Password string // MySQL password
	Database string // MySQL database name
	Host     string // MySQL host
	Port     string // MySQL port
}

// OutputSettings contains database output settings.
type OutputSettings struct {
	SQLite SQLiteSettings
	MySQL  MySQLSettings
}

// SourceSettings contains settings for the external Telegram gift source.
type SourceSettings struct {
	BaseURL     string // base URL of the gift data endpoint
	BotBaseURL  string // base URL of the bot API (available-gifts listing)
	BotToken    string // bot token for the listing API
	Timeout     int    // HTTP timeout in seconds
	RateLimitMS int    // minimum delay between requests in milliseconds
	CacheTTL    int    // response cache TTL in minutes
	UserAgent   string // user agent header sent upstream
}

// SyncSettings contains settings for the catalog synchronizer.
type SyncSettings struct {
	Interval         int      // minimum minutes between full catalog updates
	BatchSize        int      // units fetched concurrently per batch
	BatchDelayMS     int      // fixed delay between batches in milliseconds
	ArchiveRetention int      // archived snapshot versions kept per gift
	Types            []string // configured gift type slugs, merged with the discovered registry
}

// AnalyticsSettings contains settings for the analytics and prediction engine.
type AnalyticsSettings struct {
	WindowHours      int // trailing ledger window used for hourly stats
	StalenessMinutes int // prediction refresh threshold
}

// APISettings contains settings for the HTTP API surface.
type APISettings struct {
	Enabled bool
	Listen  string // listen address and port
}

// TelemetrySettings contains settings for the Prometheus endpoint.
type TelemetrySettings struct {
	Enabled bool
	Listen  string // listen address and port of telemetry endpoint
}

// MQTTSettings contains settings for MQTT integration.
type MQTTSettings struct {
	Enabled  bool   // true to enable MQTT
	Broker   string // MQTT broker (tcp://host:port)
	Topic    string // topic prefix for gift events
	Username string // MQTT username
	Password string // MQTT password
}

// NotificationSettings contains settings for sold-out / low-stock alerts.
type NotificationSettings struct {
	Enabled         bool
	URLs            []string // shoutrrr service URLs
	LowStockPercent int      // alert when remaining drops to or below this percentage
}

// RealtimeSettings contains settings for the long-running monitor mode.
type RealtimeSettings struct {
	API          APISettings
	Telemetry    TelemetrySettings
	MQTT         MQTTSettings
	Notification NotificationSettings
}

// Settings contains all application settings
type Settings struct {
	Debug bool // true to enable debug mode

	Main struct {
		Name string    // node name
		Log  LogConfig // main log configuration
	}

	Output    OutputSettings
	Source    SourceSettings
	Sync      SyncSettings
	Analytics AnalyticsSettings
	Realtime  RealtimeSettings
}

// settingsInstance is the current settings instance
var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into Settings.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}

	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	// function defined in defaults.go
	setDefaultConfig()

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// Config file not found, create config with defaults
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig creates a default config file and writes it to the default config path
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")
	defaultConfig := getDefaultConfig()

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)
	return viper.ReadInConfig()
}

// getDefaultConfig reads the default configuration from the embedded config.yaml file.
func getDefaultConfig() string {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}
	return string(data)
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Setting returns the current settings instance, initializing it if necessary
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			if _, err := Load(); err != nil {
				log.Fatalf("Error loading settings: %v", err)
			}
		}
	})
	return GetSettings()
}

// SaveSettings saves the current settings to the configuration file.
func SaveSettings() error {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()

	settingsCopy := *settingsInstance

	configPath, err := FindConfigFile()
	if err != nil {
		return fmt.Errorf("error finding config file: %w", err)
	}

	if err := SaveYAMLConfig(configPath, &settingsCopy); err != nil {
		return fmt.Errorf("error saving config: %w", err)
	}

	log.Printf("Settings saved successfully to %s", configPath)
	return nil
}

// SaveYAMLConfig updates the YAML configuration file with new settings.
// It overwrites the existing file, not preserving comments or structure.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	// Write to a temporary file first to ensure an atomic write operation
	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary config file: %w", err)
	}
	tempName := tempFile.Name()

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		os.Remove(tempName)
		return fmt.Errorf("error writing temporary config file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		os.Remove(tempName)
		return fmt.Errorf("error closing temporary config file: %w", err)
	}

	if err := os.Rename(tempName, configPath); err != nil {
		os.Remove(tempName)
		return fmt.Errorf("error replacing config file: %w", err)
	}

	return nil
}
