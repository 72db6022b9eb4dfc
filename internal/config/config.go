package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "AUDIOINSIGHT"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Labels   LabelsConfig   `mapstructure:"labels"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"min=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"min=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=0"`
	MaxUploadMB     int64         `mapstructure:"max_upload_mb" validate:"min=1"`
}

// CORSConfig is read once at startup and never mutated afterwards.
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins" validate:"min=1,dive,required"`
	AllowedMethods   []string `mapstructure:"allowed_methods" validate:"min=1,dive,required"`
	AllowedHeaders   []string `mapstructure:"allowed_headers" validate:"dive,required"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age" validate:"min=0"`
}

type AnalysisConfig struct {
	MaxDurationSec float64       `mapstructure:"max_duration_sec" validate:"gt=0"`
	FFmpegBin      string        `mapstructure:"ffmpeg_bin" validate:"required"`
	FFprobeBin     string        `mapstructure:"ffprobe_bin" validate:"required"`
	TempDir        string        `mapstructure:"temp_dir"`
	DecodeTimeout  time.Duration `mapstructure:"decode_timeout" validate:"gt=0"`
}

// LabelsConfig controls the genre and daw form fields. When Required is
// false a missing field is replaced by Default.
type LabelsConfig struct {
	Default  string `mapstructure:"default"`
	Required bool   `mapstructure:"required"`
}

type MetricsConfig struct {
	// Addr is the listen address of the Prometheus endpoint. Empty disables it.
	Addr string `mapstructure:"addr" validate:"omitempty,hostname_port"`
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn warning error fatal DEBUG INFO WARN WARNING ERROR FATAL"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 2*time.Minute)
	v.SetDefault("server.write_timeout", 5*time.Minute)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.max_upload_mb", 100)

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"POST", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"*"})
	v.SetDefault("cors.allow_credentials", true)
	v.SetDefault("cors.max_age", 600)

	v.SetDefault("analysis.max_duration_sec", 300.0)
	v.SetDefault("analysis.ffmpeg_bin", "ffmpeg")
	v.SetDefault("analysis.ffprobe_bin", "ffprobe")
	v.SetDefault("analysis.temp_dir", "")
	v.SetDefault("analysis.decode_timeout", 60*time.Second)

	v.SetDefault("labels.default", "Unknown")
	v.SetDefault("labels.required", false)

	v.SetDefault("metrics.addr", "")
	v.SetDefault("log.level", "info")
}

// flags maps command line flags onto config keys.
var flags = []struct {
	name, key, usage string
	kind             string
}{
	{"port", "server.port", "HTTP server port", "int"},
	{"origins", "cors.allowed_origins", "Comma-separated list of allowed CORS origins (use * for all)", "strings"},
	{"max-duration", "analysis.max_duration_sec", "Longest accepted audio, in seconds", "float"},
	{"ffmpeg", "analysis.ffmpeg_bin", "Path to the ffmpeg binary", "string"},
	{"ffprobe", "analysis.ffprobe_bin", "Path to the ffprobe binary", "string"},
	{"temp", "analysis.temp_dir", "Temporary directory for spooled uploads", "string"},
	{"metrics-addr", "metrics.addr", "Listen address for Prometheus metrics (empty disables)", "string"},
	{"log-level", "log.level", "Log level: debug, info, warn, error", "string"},
}

// Load resolves configuration from, in increasing precedence: defaults, an
// optional audioinsight.yaml, a .env file, AUDIOINSIGHT_* environment
// variables and command line flags.
func Load(args []string) (*Config, error) {
	// A missing .env file is normal outside development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	fs := pflag.NewFlagSet("audioinsight", pflag.ContinueOnError)
	configFile := fs.String("config", "", "Path to a config file (default: ./audioinsight.yaml or ./config/audioinsight.yaml)")
	for _, f := range flags {
		switch f.kind {
		case "int":
			fs.Int(f.name, v.GetInt(f.key), f.usage)
		case "float":
			fs.Float64(f.name, v.GetFloat64(f.key), f.usage)
		case "strings":
			fs.StringSlice(f.name, v.GetStringSlice(f.key), f.usage)
		default:
			fs.String(f.name, v.GetString(f.key), f.usage)
		}
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	for _, f := range flags {
		if err := v.BindPFlag(f.key, fs.Lookup(f.name)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", f.name, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if *configFile != "" {
		v.SetConfigFile(*configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", *configFile, err)
		}
	} else {
		v.SetConfigName("audioinsight")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.CORS.AllowedOrigins = trimAll(cfg.CORS.AllowedOrigins)
	cfg.CORS.AllowedMethods = trimAll(cfg.CORS.AllowedMethods)
	cfg.CORS.AllowedHeaders = trimAll(cfg.CORS.AllowedHeaders)

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// MaxUploadBytes is the request body limit for uploads.
func (c *Config) MaxUploadBytes() int64 {
	return c.Server.MaxUploadMB << 20
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
