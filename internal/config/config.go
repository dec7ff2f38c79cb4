package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "ridemap.cfg.json"

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Listen          string        `json:"listen" mapstructure:"listen"`
	ReadTimeout     time.Duration `json:"readTimeout" mapstructure:"readTimeout"`
	ShutdownTimeout time.Duration `json:"shutdownTimeout" mapstructure:"shutdownTimeout"`
	MetricsEnabled  bool          `json:"metricsEnabled" mapstructure:"metricsEnabled"`
}

// MapConfig holds the initial viewport and display settings
type MapConfig struct {
	CenterLat         float64       `json:"centerLat" mapstructure:"centerLat"`
	CenterLon         float64       `json:"centerLon" mapstructure:"centerLon"`
	Zoom              float64       `json:"zoom" mapstructure:"zoom"`
	LocateZoom        float64       `json:"locateZoom" mapstructure:"locateZoom"`
	Width             int           `json:"width" mapstructure:"width"`
	Height            int           `json:"height" mapstructure:"height"`
	FitPadding        int           `json:"fitPadding" mapstructure:"fitPadding"`
	TileURL           string        `json:"tileUrl" mapstructure:"tileUrl"`
	NotificationDelay time.Duration `json:"notificationDelay" mapstructure:"notificationDelay"`
}

// SessionConfig controls idle session pruning
type SessionConfig struct {
	MaxIdle       time.Duration `json:"maxIdle" mapstructure:"maxIdle"`
	PruneInterval time.Duration `json:"pruneInterval" mapstructure:"pruneInterval"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// OSRMConfig holds directions service settings
type OSRMConfig struct {
	Endpoint       string        `json:"endpoint" mapstructure:"endpoint"`
	Timeout        time.Duration `json:"timeout" mapstructure:"timeout"`
	RequestsPerSec float64       `json:"requestsPerSec" mapstructure:"requestsPerSec"`
	UserAgent      string        `json:"userAgent" mapstructure:"userAgent"`
	CacheTTL       time.Duration `json:"cacheTtl" mapstructure:"cacheTtl"`
	CacheSize      int           `json:"cacheSize" mapstructure:"cacheSize"`
}

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds SQLite storage backend settings
type SQLiteConfig struct {
	DumpPath     string        `json:"dumpPath" mapstructure:"dumpPath"`
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
}

// StorageConfig selects and configures the trip storage backend
type StorageConfig struct {
	Type   string       `json:"type" mapstructure:"type"`
	Memory MemoryConfig `json:"memory" mapstructure:"memory"`
	SQLite SQLiteConfig `json:"sqlite" mapstructure:"sqlite"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// InfluxConfig holds InfluxDB connection settings
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
	Bucket   string `json:"bucket" mapstructure:"bucket"`
}

// URL returns the InfluxDB server URL.
func (c InfluxConfig) URL() string {
	return fmt.Sprintf("%s://%s:%s", c.Protocol, c.Host, c.Port)
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// SetDefaults registers every default value. Load calls it; commands that run
// without a config file call it directly.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./ridemaplogs")

	viper.SetDefault("server.listen", ":8080")
	viper.SetDefault("server.readTimeout", "15s")
	viper.SetDefault("server.shutdownTimeout", "10s")
	viper.SetDefault("metrics.enabled", true)

	viper.SetDefault("map.centerLat", -34.6033)
	viper.SetDefault("map.centerLon", -58.3817)
	viper.SetDefault("map.zoom", 12)
	viper.SetDefault("map.locateZoom", 15)
	viper.SetDefault("map.width", 1024)
	viper.SetDefault("map.height", 768)
	viper.SetDefault("map.fitPadding", 50)
	viper.SetDefault("map.tileUrl", "https://tile.openstreetmap.org/{z}/{x}/{y}.png")
	viper.SetDefault("map.notificationDelay", "5s")

	viper.SetDefault("osrm.endpoint", "https://router.project-osrm.org/route/v1/driving")
	viper.SetDefault("osrm.timeout", "10s")
	viper.SetDefault("osrm.requestsPerSec", 1)
	viper.SetDefault("osrm.userAgent", "ridemap/1.0")
	viper.SetDefault("osrm.cacheTtl", "0s")
	viper.SetDefault("osrm.cacheSize", 1000)

	viper.SetDefault("session.maxIdle", "30m")
	viper.SetDefault("session.pruneInterval", "1m")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "ridemap")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./trips")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.dumpPath", "./ridemap.db")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "ridemap")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "ridemap-metrics")
	viper.SetDefault("influx.bucket", "ride_events")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetServerConfig returns the HTTP server settings.
func GetServerConfig() ServerConfig {
	return ServerConfig{
		Listen:          viper.GetString("server.listen"),
		ReadTimeout:     viper.GetDuration("server.readTimeout"),
		ShutdownTimeout: viper.GetDuration("server.shutdownTimeout"),
		MetricsEnabled:  viper.GetBool("metrics.enabled"),
	}
}

// GetMapConfig returns the map viewport settings.
func GetMapConfig() MapConfig {
	return MapConfig{
		CenterLat:         viper.GetFloat64("map.centerLat"),
		CenterLon:         viper.GetFloat64("map.centerLon"),
		Zoom:              viper.GetFloat64("map.zoom"),
		LocateZoom:        viper.GetFloat64("map.locateZoom"),
		Width:             viper.GetInt("map.width"),
		Height:            viper.GetInt("map.height"),
		FitPadding:        viper.GetInt("map.fitPadding"),
		TileURL:           viper.GetString("map.tileUrl"),
		NotificationDelay: viper.GetDuration("map.notificationDelay"),
	}
}

// GetOSRMConfig returns the directions service settings.
func GetOSRMConfig() OSRMConfig {
	return OSRMConfig{
		Endpoint:       viper.GetString("osrm.endpoint"),
		Timeout:        viper.GetDuration("osrm.timeout"),
		RequestsPerSec: viper.GetFloat64("osrm.requestsPerSec"),
		UserAgent:      viper.GetString("osrm.userAgent"),
		CacheTTL:       viper.GetDuration("osrm.cacheTtl"),
		CacheSize:      viper.GetInt("osrm.cacheSize"),
	}
}

// GetSessionConfig returns the idle session settings.
func GetSessionConfig() SessionConfig {
	return SessionConfig{
		MaxIdle:       viper.GetDuration("session.maxIdle"),
		PruneInterval: viper.GetDuration("session.pruneInterval"),
	}
}

// GetDatabaseConfig returns the PostgreSQL connection settings.
func GetDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
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
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetInfluxConfig returns the InfluxDB settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Protocol: viper.GetString("influx.protocol"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}
