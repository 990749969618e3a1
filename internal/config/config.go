package config

import (
	"fmt"
	"time"

	"github.com/roverscan/rovermap/internal/geo"
	"github.com/roverscan/rovermap/internal/session"
	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "rovermap.cfg.json"

// FileStoreConfig holds JSON file storage backend settings
type FileStoreConfig struct {
	Dir            string `json:"dir" mapstructure:"dir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds SQLite storage backend settings
type SQLiteConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// PostgresConfig holds PostgreSQL storage backend settings
type PostgresConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
	SSLMode  string `json:"sslMode" mapstructure:"sslMode"`
}

// StorageConfig selects and configures the map storage backend
type StorageConfig struct {
	Type     string          `json:"type" mapstructure:"type"`
	File     FileStoreConfig `json:"file" mapstructure:"file"`
	SQLite   SQLiteConfig    `json:"sqlite" mapstructure:"sqlite"`
	Postgres PostgresConfig  `json:"postgres" mapstructure:"postgres"`
}

// EngineConfig holds tick loop settings
type EngineConfig struct {
	TickRate         int
	QueueSize        int
	AutosaveInterval time.Duration
}

// ServerConfig holds the HTTP map server settings
type ServerConfig struct {
	Enabled bool
	Address string
}

// GRPCConfig holds the command RPC listener settings
type GRPCConfig struct {
	Enabled bool
	Address string
}

// MQTTConfig holds the MQTT command bridge settings
type MQTTConfig struct {
	Enabled      bool
	Broker       string
	ClientID     string
	Username     string
	Password     string
	CommandTopic string
	AckTopic     string
	StatusTopic  string
	QoS          byte
}

// InfluxConfig holds telemetry settings
type InfluxConfig struct {
	Enabled   bool
	Host      string
	Port      string
	Protocol  string
	Token     string
	Org       string
	Bucket    string
	BackupDir string
}

// GraylogConfig holds GELF log shipping settings
type GraylogConfig struct {
	Enabled bool
	Address string
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

// SetDefaults registers every default value. Load calls it; callers that
// run without a config file call it directly.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("rover.originX", 0.0)
	viper.SetDefault("rover.originY", 0.0)
	viper.SetDefault("rover.heading", 0.0)
	viper.SetDefault("rover.speed", 5.0)
	viper.SetDefault("rover.turnStep", 5.0)
	viper.SetDefault("rover.driftWhileTurning", false)
	viper.SetDefault("rover.driftStep", 5.0)
	viper.SetDefault("rover.mastFollowsHeading", false)

	viper.SetDefault("viewport.width", 800.0)
	viper.SetDefault("viewport.height", 800.0)
	viper.SetDefault("viewport.band", 0.25)
	viper.SetDefault("viewport.step", 0.1)

	viper.SetDefault("sensor.fovAngle", 90.0)
	viper.SetDefault("sensor.range", 200.0)
	viper.SetDefault("sensor.arcStep", 1.0)
	viper.SetDefault("sensor.scanOnStart", false)

	viper.SetDefault("coverage.width", 10000.0)
	viper.SetDefault("coverage.height", 10000.0)
	viper.SetDefault("coverage.cellSize", 4.0)

	viper.SetDefault("annotation.resourceDistance", 15.0)
	viper.SetDefault("annotation.obstacleDistance", 15.0)
	viper.SetDefault("annotation.obstacleLength", 30.0)

	viper.SetDefault("engine.tickRate", 30)
	viper.SetDefault("engine.queueSize", 1024)
	viper.SetDefault("engine.autosaveInterval", "0s")

	viper.SetDefault("storage.type", "file")
	viper.SetDefault("storage.file.dir", "./maps")
	viper.SetDefault("storage.file.compressOutput", false)
	viper.SetDefault("storage.sqlite.path", "./maps/rovermap.db")
	viper.SetDefault("storage.postgres.host", "localhost")
	viper.SetDefault("storage.postgres.port", "5432")
	viper.SetDefault("storage.postgres.username", "postgres")
	viper.SetDefault("storage.postgres.password", "postgres")
	viper.SetDefault("storage.postgres.database", "rovermap")
	viper.SetDefault("storage.postgres.sslMode", "disable")

	viper.SetDefault("server.enabled", true)
	viper.SetDefault("server.address", "localhost:8080")

	viper.SetDefault("grpc.enabled", true)
	viper.SetDefault("grpc.address", "localhost:50051")

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.clientId", "rovermap")
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.commandTopic", "rover/commands")
	viper.SetDefault("mqtt.ackTopic", "rover/acks")
	viper.SetDefault("mqtt.statusTopic", "rover/status")
	viper.SetDefault("mqtt.qos", 1)

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "rovermap")
	viper.SetDefault("influx.bucket", "rover")
	viper.SetDefault("influx.backupDir", "./logs")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("geo.originLon", 0.0)
	viper.SetDefault("geo.originLat", 0.0)
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

// GetRoverConfig returns the starting pose and motion settings.
func GetRoverConfig() session.RoverConfig {
	return session.RoverConfig{
		Origin:             geo.Vec{X: viper.GetFloat64("rover.originX"), Y: viper.GetFloat64("rover.originY")},
		Heading:            viper.GetFloat64("rover.heading"),
		Speed:              viper.GetFloat64("rover.speed"),
		TurnStep:           viper.GetFloat64("rover.turnStep"),
		DriftWhileTurning:  viper.GetBool("rover.driftWhileTurning"),
		DriftStep:          viper.GetFloat64("rover.driftStep"),
		MastFollowsHeading: viper.GetBool("rover.mastFollowsHeading"),
	}
}

// GetViewportConfig returns the display window settings.
func GetViewportConfig() session.ViewportConfig {
	return session.ViewportConfig{
		Width:  viper.GetFloat64("viewport.width"),
		Height: viper.GetFloat64("viewport.height"),
		Band:   viper.GetFloat64("viewport.band"),
		Step:   viper.GetFloat64("viewport.step"),
	}
}

// GetSensorConfig returns the field of view settings.
func GetSensorConfig() session.SensorConfig {
	return session.SensorConfig{
		FOVAngle:    viper.GetFloat64("sensor.fovAngle"),
		Range:       viper.GetFloat64("sensor.range"),
		ArcStep:     viper.GetFloat64("sensor.arcStep"),
		ScanOnStart: viper.GetBool("sensor.scanOnStart"),
	}
}

// GetCoverageConfig returns the coverage grid settings.
func GetCoverageConfig() session.CoverageConfig {
	return session.CoverageConfig{
		Width:    viper.GetFloat64("coverage.width"),
		Height:   viper.GetFloat64("coverage.height"),
		CellSize: viper.GetFloat64("coverage.cellSize"),
	}
}

// GetAnnotationConfig returns placement defaults.
func GetAnnotationConfig() session.AnnotationConfig {
	return session.AnnotationConfig{
		ResourceDistance: viper.GetFloat64("annotation.resourceDistance"),
		ObstacleDistance: viper.GetFloat64("annotation.obstacleDistance"),
		ObstacleLength:   viper.GetFloat64("annotation.obstacleLength"),
	}
}

// GetSessionConfig gathers everything a session needs.
func GetSessionConfig() session.Config {
	return session.Config{
		Rover:      GetRoverConfig(),
		Viewport:   GetViewportConfig(),
		Sensor:     GetSensorConfig(),
		Coverage:   GetCoverageConfig(),
		Annotation: GetAnnotationConfig(),
	}
}

// GetEngineConfig returns tick loop settings.
func GetEngineConfig() EngineConfig {
	return EngineConfig{
		TickRate:         viper.GetInt("engine.tickRate"),
		QueueSize:        viper.GetInt("engine.queueSize"),
		AutosaveInterval: viper.GetDuration("engine.autosaveInterval"),
	}
}

// GetStorageConfig returns the storage backend configuration.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		File: FileStoreConfig{
			Dir:            viper.GetString("storage.file.dir"),
			CompressOutput: viper.GetBool("storage.file.compressOutput"),
		},
		SQLite: SQLiteConfig{
			Path: viper.GetString("storage.sqlite.path"),
		},
		Postgres: PostgresConfig{
			Host:     viper.GetString("storage.postgres.host"),
			Port:     viper.GetString("storage.postgres.port"),
			Username: viper.GetString("storage.postgres.username"),
			Password: viper.GetString("storage.postgres.password"),
			Database: viper.GetString("storage.postgres.database"),
			SSLMode:  viper.GetString("storage.postgres.sslMode"),
		},
	}
}

// GetServerConfig returns the HTTP map server settings.
func GetServerConfig() ServerConfig {
	return ServerConfig{
		Enabled: viper.GetBool("server.enabled"),
		Address: viper.GetString("server.address"),
	}
}

// GetGRPCConfig returns the command RPC listener settings.
func GetGRPCConfig() GRPCConfig {
	return GRPCConfig{
		Enabled: viper.GetBool("grpc.enabled"),
		Address: viper.GetString("grpc.address"),
	}
}

// GetMQTTConfig returns the MQTT bridge settings.
func GetMQTTConfig() MQTTConfig {
	return MQTTConfig{
		Enabled:      viper.GetBool("mqtt.enabled"),
		Broker:       viper.GetString("mqtt.broker"),
		ClientID:     viper.GetString("mqtt.clientId"),
		Username:     viper.GetString("mqtt.username"),
		Password:     viper.GetString("mqtt.password"),
		CommandTopic: viper.GetString("mqtt.commandTopic"),
		AckTopic:     viper.GetString("mqtt.ackTopic"),
		StatusTopic:  viper.GetString("mqtt.statusTopic"),
		QoS:          byte(viper.GetInt("mqtt.qos")),
	}
}

// GetInfluxConfig returns telemetry settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:   viper.GetBool("influx.enabled"),
		Host:      viper.GetString("influx.host"),
		Port:      viper.GetString("influx.port"),
		Protocol:  viper.GetString("influx.protocol"),
		Token:     viper.GetString("influx.token"),
		Org:       viper.GetString("influx.org"),
		Bucket:    viper.GetString("influx.bucket"),
		BackupDir: viper.GetString("influx.backupDir"),
	}
}

// GetGraylogConfig returns GELF settings.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

// GetGeoConfig returns the georeference of the world origin.
func GetGeoConfig() geo.Georeference {
	return geo.Georeference{
		OriginLon: viper.GetFloat64("geo.originLon"),
		OriginLat: viper.GetFloat64("geo.originLat"),
	}
}
