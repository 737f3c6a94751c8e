// Ininicializing common application configuration
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ds124wfegd/imgsqueeze/internal/entity"
	"github.com/ds124wfegd/imgsqueeze/internal/pkg/planner"
	"github.com/spf13/viper"
)

const EnvPrefix = "IMGSQUEEZE"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Limits    LimitsConfig    `mapstructure:"limits"`
	Planner   PlannerConfig   `mapstructure:"planner"`
	Processor ProcessorConfig `mapstructure:"processor"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
}

type ServerConfig struct {
	AppVersion      string        `mapstructure:"app_version"`
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	Timeout         time.Duration `mapstructure:"timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	Env             string        `mapstructure:"environment"`
	Mode            string        `mapstructure:"mode"`
	MaxRequestBytes int64         `mapstructure:"max_request_bytes"`
}

type LimitsConfig struct {
	MaxFileSize  int64         `mapstructure:"max_file_size"`
	MaxFiles     int           `mapstructure:"max_files"`
	Workers      int           `mapstructure:"workers"` // 0 means one per CPU
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

type PlannerConfig struct {
	MaxDimension            int     `mapstructure:"max_dimension"`
	// zero is a valid offset and floor, nil means unset
	LossyQualityOffset      *int    `mapstructure:"lossy_quality_offset"`
	QualityFloor            *int    `mapstructure:"quality_floor"`
	LosslessJPEGQuality     int     `mapstructure:"lossless_jpeg_quality"`
	LosslessPNGLevel        int     `mapstructure:"lossless_png_level"`
	LossyPNGLevel           int     `mapstructure:"lossy_png_level"`
	WebPEffort              int     `mapstructure:"webp_effort"`
	WebPAlphaQuality        int     `mapstructure:"webp_alpha_quality"`
	PaletteMinColors        int     `mapstructure:"palette_min_colors"`
	PaletteMaxColors        int     `mapstructure:"palette_max_colors"`
	Dithering               float64 `mapstructure:"dithering"`
	ProgressiveMinDimension int     `mapstructure:"progressive_min_dimension"`
	HighFidelityQuality     int     `mapstructure:"high_fidelity_quality"`
	FlattenBackground       string  `mapstructure:"flatten_background"`
	DefaultQuality          int     `mapstructure:"default_quality"`
}

type ProcessorConfig struct {
	CwebpPath            string `mapstructure:"cwebp_path"`
	CjpegPath            string `mapstructure:"cjpeg_path"`
	MaxPixels            int    `mapstructure:"max_pixels"`
	KeepOriginalIfLarger bool   `mapstructure:"keep_original_if_larger"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

// LoadConfig reads ./config/config.yaml. A missing file is not an error:
// defaults and IMGSQUEEZE_* environment variables still apply.
func LoadConfig() (*viper.Viper, error) {
	return LoadConfigFrom("")
}

// LoadConfigFrom reads the given file instead of the default location.
func LoadConfigFrom(file string) (*viper.Viper, error) {

	viperInstance := viper.New()
	setDefaults(viperInstance)

	viperInstance.SetEnvPrefix(EnvPrefix)
	viperInstance.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viperInstance.AutomaticEnv()

	if file != "" {
		viperInstance.SetConfigFile(file)
	} else {
		viperInstance.AddConfigPath("./config")
		viperInstance.SetConfigName("config")
		viperInstance.SetConfigType("yaml")
	}

	err := viperInstance.ReadInConfig()

	var notFound viper.ConfigFileNotFoundError
	if err != nil && !(file == "" && errors.As(err, &notFound)) {
		return nil, err
	}
	return viperInstance, nil
}

func ParseConfig(v *viper.Viper) (*Config, error) {

	var c Config

	err := v.Unmarshal(&c)
	if err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	if _, err := ParseColor(c.Planner.FlattenBackground); err != nil {
		return nil, err
	}
	return &c, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.app_version", "1.0.0")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.timeout", 120*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.max_request_bytes", int64(entity.DefaultMaxFiles*entity.DefaultMaxFileSize+1<<20))

	// Limits defaults
	v.SetDefault("limits.max_file_size", int64(entity.DefaultMaxFileSize))
	v.SetDefault("limits.max_files", entity.DefaultMaxFiles)
	v.SetDefault("limits.workers", 0)
	v.SetDefault("limits.batch_timeout", 90*time.Second)

	// Planner defaults
	t := planner.DefaultTunables()
	v.SetDefault("planner.max_dimension", t.MaxDimension)
	v.SetDefault("planner.lossy_quality_offset", t.LossyQualityOffset)
	v.SetDefault("planner.quality_floor", t.QualityFloor)
	v.SetDefault("planner.lossless_jpeg_quality", t.LosslessJPEGQuality)
	v.SetDefault("planner.lossless_png_level", t.LosslessPNGLevel)
	v.SetDefault("planner.lossy_png_level", t.LossyPNGLevel)
	v.SetDefault("planner.webp_effort", t.WebPEffort)
	v.SetDefault("planner.webp_alpha_quality", t.WebPAlphaQuality)
	v.SetDefault("planner.palette_min_colors", t.PaletteMinColors)
	v.SetDefault("planner.palette_max_colors", t.PaletteMaxColors)
	v.SetDefault("planner.dithering", t.Dithering)
	v.SetDefault("planner.progressive_min_dimension", t.ProgressiveMinDimension)
	v.SetDefault("planner.high_fidelity_quality", t.HighFidelityQuality)
	v.SetDefault("planner.flatten_background", "#ffffff")
	v.SetDefault("planner.default_quality", entity.DefaultQuality)

	// Processor defaults
	v.SetDefault("processor.cwebp_path", "cwebp")
	v.SetDefault("processor.cjpeg_path", "cjpeg")
	v.SetDefault("processor.max_pixels", 100_000_000)
	v.SetDefault("processor.keep_original_if_larger", true)

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9094"})
	v.SetDefault("kafka.topic", "compression-stats")
	v.SetDefault("kafka.group_id", "imgsqueeze-stats")
}

// Tunables converts the planner section. Zero values fall back to the
// planner defaults.
func (c *Config) Tunables() (planner.Tunables, error) {
	t := planner.DefaultTunables()
	p := c.Planner

	bg, err := ParseColor(p.FlattenBackground)
	if err != nil {
		return t, err
	}
	t.FlattenBackground = bg

	setIfPositive(&t.MaxDimension, p.MaxDimension)
	setIfNonNegative(&t.LossyQualityOffset, p.LossyQualityOffset)
	setIfNonNegative(&t.QualityFloor, p.QualityFloor)
	setIfPositive(&t.LosslessJPEGQuality, p.LosslessJPEGQuality)
	setIfPositive(&t.LosslessPNGLevel, p.LosslessPNGLevel)
	setIfPositive(&t.LossyPNGLevel, p.LossyPNGLevel)
	setIfPositive(&t.WebPEffort, p.WebPEffort)
	setIfPositive(&t.WebPAlphaQuality, p.WebPAlphaQuality)
	setIfPositive(&t.PaletteMinColors, p.PaletteMinColors)
	setIfPositive(&t.PaletteMaxColors, p.PaletteMaxColors)
	setIfPositive(&t.ProgressiveMinDimension, p.ProgressiveMinDimension)
	setIfPositive(&t.HighFidelityQuality, p.HighFidelityQuality)
	if p.Dithering >= 0 {
		t.Dithering = p.Dithering
	}
	return t, nil
}

func setIfPositive(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setIfNonNegative(dst *int, v *int) {
	if v != nil && *v >= 0 {
		*dst = *v
	}
}

// ParseColor accepts #rgb and #rrggbb. An empty string is white.
func ParseColor(s string) (entity.RGB, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	switch len(s) {
	case 0:
		return entity.White, nil
	case 3:
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	case 6:
	default:
		return entity.RGB{}, fmt.Errorf("invalid colour %q: want #rgb or #rrggbb", s)
	}

	n, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return entity.RGB{}, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	return entity.RGB{R: uint8(n >> 16), G: uint8(n >> 8), B: uint8(n)}, nil
}
