package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variables that override file settings.
// Nested keys use underscores, e.g. OPEN_CISTERNA_DETECTION_RANGE_MIN.
const EnvPrefix = "OPEN_CISTERNA"

// Config represents the application configuration.
type Config struct {
	Geometry  GeometryConfig  `yaml:"geometry" mapstructure:"geometry"`
	Sensor    SensorConfig    `yaml:"sensor" mapstructure:"sensor"`
	Detection DetectionConfig `yaml:"detection" mapstructure:"detection"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Mock      MockConfig      `yaml:"mock" mapstructure:"mock"`
}

// GeometryConfig describes the tank.
type GeometryConfig struct {
	BaseArea float64 `yaml:"base_area" mapstructure:"base_area"` // Cross-sectional area (m²)
}

// SensorConfig contains sensor characteristics.
type SensorConfig struct {
	// NoDetectionDistance is the distance (m) reported when nothing was detected.
	NoDetectionDistance float64 `yaml:"no_detection_distance" mapstructure:"no_detection_distance"`
}

// RangeConfig is the usable measurement range in meters.
type RangeConfig struct {
	Min float64 `yaml:"min" mapstructure:"min"`
	Max float64 `yaml:"max" mapstructure:"max"`
}

// DetectionConfig contains serial port and polling parameters.
type DetectionConfig struct {
	Port        string        `yaml:"port" mapstructure:"port"`
	Interval    int           `yaml:"interval" mapstructure:"interval"` // Seconds between polls
	Range       RangeConfig   `yaml:"range" mapstructure:"range"`
	BaudRate    int           `yaml:"baud_rate" mapstructure:"baud_rate"`
	DataBits    int           `yaml:"data_bits" mapstructure:"data_bits"`
	StopBits    int           `yaml:"stop_bits" mapstructure:"stop_bits"`
	Parity      string        `yaml:"parity" mapstructure:"parity"`
	ReadTimeout time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
}

// ServerConfig contains HTTP server parameters.
type ServerConfig struct {
	Listen          string        `yaml:"listen" mapstructure:"listen"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// LogConfig contains logging parameters.
type LogConfig struct {
	Level  string        `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string        `yaml:"format" mapstructure:"format"` // console or json
	Output string        `yaml:"output" mapstructure:"output"` // stdout, file or both
	File   LogFileConfig `yaml:"file" mapstructure:"file"`
}

// LogFileConfig contains rotating log file parameters.
type LogFileConfig struct {
	Path       string `yaml:"path" mapstructure:"path"`
	MaxSize    int    `yaml:"max_size" mapstructure:"max_size"` // MB
	MaxAge     int    `yaml:"max_age" mapstructure:"max_age"`   // days
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	Compress   bool   `yaml:"compress" mapstructure:"compress"`
}

// MockConfig contains mock sensor parameters.
type MockConfig struct {
	MinDistance float64       `yaml:"min_distance" mapstructure:"min_distance"` // Closest simulated surface (m)
	MaxDistance float64       `yaml:"max_distance" mapstructure:"max_distance"` // Farthest simulated surface (m)
	Period      time.Duration `yaml:"period" mapstructure:"period"`             // One fill/drain cycle
	NoiseLevel  float64       `yaml:"noise_level" mapstructure:"noise_level"`   // Noise amplitude (m)
	ChunkSize   int           `yaml:"chunk_size" mapstructure:"chunk_size"`     // Bytes per simulated read
}

// Default returns a configuration with defaults for everything except the
// installation specific settings, which must come from a file or the environment.
func Default() *Config {
	return &Config{
		Detection: DetectionConfig{
			BaudRate:    9600,
			DataBits:    8,
			StopBits:    1,
			Parity:      "N",
			ReadTimeout: 100 * time.Millisecond,
		},
		Server: ServerConfig{
			Listen:          ":8000",
			ShutdownTimeout: 5 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
			Output: "stdout",
			File: LogFileConfig{
				Path:       "cisterna.log",
				MaxSize:    10,
				MaxAge:     30,
				MaxBackups: 5,
				Compress:   false,
			},
		},
		Mock: MockConfig{
			MinDistance: 0.5,
			MaxDistance: 3.0,
			Period:      10 * time.Minute,
			NoiseLevel:  0.005,
			ChunkSize:   3,
		},
	}
}

// Load loads configuration from a file and overlays OPEN_CISTERNA_* environment
// variables. A missing file is not an error: defaults and environment are used.
// The result is not validated; call Validate before using it.
func Load(filename string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())

	if filename != "" {
		v.SetConfigFile(filename)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers every key with viper. Keys unknown to viper are not
// picked up from the environment, so required settings are registered too.
func setDefaults(v *viper.Viper, def *Config) {
	v.SetDefault("geometry.base_area", def.Geometry.BaseArea)
	v.SetDefault("sensor.no_detection_distance", def.Sensor.NoDetectionDistance)

	v.SetDefault("detection.port", def.Detection.Port)
	v.SetDefault("detection.interval", def.Detection.Interval)
	v.SetDefault("detection.range.min", def.Detection.Range.Min)
	v.SetDefault("detection.range.max", def.Detection.Range.Max)
	v.SetDefault("detection.baud_rate", def.Detection.BaudRate)
	v.SetDefault("detection.data_bits", def.Detection.DataBits)
	v.SetDefault("detection.stop_bits", def.Detection.StopBits)
	v.SetDefault("detection.parity", def.Detection.Parity)
	v.SetDefault("detection.read_timeout", def.Detection.ReadTimeout)

	v.SetDefault("server.listen", def.Server.Listen)
	v.SetDefault("server.shutdown_timeout", def.Server.ShutdownTimeout)

	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)
	v.SetDefault("log.output", def.Log.Output)
	v.SetDefault("log.file.path", def.Log.File.Path)
	v.SetDefault("log.file.max_size", def.Log.File.MaxSize)
	v.SetDefault("log.file.max_age", def.Log.File.MaxAge)
	v.SetDefault("log.file.max_backups", def.Log.File.MaxBackups)
	v.SetDefault("log.file.compress", def.Log.File.Compress)

	v.SetDefault("mock.min_distance", def.Mock.MinDistance)
	v.SetDefault("mock.max_distance", def.Mock.MaxDistance)
	v.SetDefault("mock.period", def.Mock.Period)
	v.SetDefault("mock.noise_level", def.Mock.NoiseLevel)
	v.SetDefault("mock.chunk_size", def.Mock.ChunkSize)
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// NoDetectionMillimeters returns the no-detection sentinel in millimeters,
// rounded to the nearest millimeter so it matches the sensor's integer report.
func (c *Config) NoDetectionMillimeters() uint64 {
	return uint64(math.Round(c.Sensor.NoDetectionDistance * 1000.0))
}

// PollInterval returns the polling interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Detection.Interval) * time.Second
}
