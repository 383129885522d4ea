package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "REMBG"

type Config struct {
	Server ServerConfig `mapstructure:"server"`
	CORS   CORSConfig   `mapstructure:"cors"`
	Upload UploadConfig `mapstructure:"upload"`
	Model  ModelConfig  `mapstructure:"model"`
	Cache  CacheConfig  `mapstructure:"cache"`
	Jobs   JobsConfig   `mapstructure:"jobs"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type CORSConfig struct {
	AllowOrigins     []string      `mapstructure:"allow_origins"`
	AllowMethods     []string      `mapstructure:"allow_methods"`
	AllowHeaders     []string      `mapstructure:"allow_headers"`
	AllowCredentials bool          `mapstructure:"allow_credentials"`
	MaxAge           time.Duration `mapstructure:"max_age"`
}

type UploadConfig struct {
	MaxSize      int64    `mapstructure:"max_size"`
	AllowedTypes []string `mapstructure:"allowed_types"`
}

// ModelConfig selects and tunes the segmentation backend.
type ModelConfig struct {
	Backend        string        `mapstructure:"backend"` // onnx, remote
	Path           string        `mapstructure:"path"`
	LibraryPath    string        `mapstructure:"library_path"`
	Device         string        `mapstructure:"device"` // auto, cuda, cpu
	InputName      string        `mapstructure:"input_name"`
	OutputName     string        `mapstructure:"output_name"`
	InputSize      int           `mapstructure:"input_size"`
	PoolSize       int           `mapstructure:"pool_size"`
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout"`
	NumThreads     int           `mapstructure:"num_threads"`
	RemoteURL      string        `mapstructure:"remote_url"`
	RemoteTimeout  time.Duration `mapstructure:"remote_timeout"`
}

type CacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type JobsConfig struct {
	PoolCheck string `mapstructure:"pool_check"`
	Stats     string `mapstructure:"stats"`
}

const (
	BackendONNX   = "onnx"
	BackendRemote = "remote"

	DeviceAuto = "auto"
	DeviceCUDA = "cuda"
	DeviceCPU  = "cpu"
)

// Load 从 YAML 文件加载配置，环境变量 REMBG_* 优先
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return unmarshal(v)
}

// New 使用给定路径加载配置，失败时退回默认配置（仍然应用环境变量）
func New(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		cfg, err = unmarshal(newViper())
		if err != nil {
			return Default()
		}
	}
	return cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("cors.allow_origins", d.CORS.AllowOrigins)
	v.SetDefault("cors.allow_methods", d.CORS.AllowMethods)
	v.SetDefault("cors.allow_headers", d.CORS.AllowHeaders)
	v.SetDefault("cors.allow_credentials", d.CORS.AllowCredentials)
	v.SetDefault("cors.max_age", d.CORS.MaxAge)

	v.SetDefault("upload.max_size", d.Upload.MaxSize)
	v.SetDefault("upload.allowed_types", d.Upload.AllowedTypes)

	v.SetDefault("model.backend", d.Model.Backend)
	v.SetDefault("model.path", d.Model.Path)
	v.SetDefault("model.library_path", d.Model.LibraryPath)
	v.SetDefault("model.device", d.Model.Device)
	v.SetDefault("model.input_name", d.Model.InputName)
	v.SetDefault("model.output_name", d.Model.OutputName)
	v.SetDefault("model.input_size", d.Model.InputSize)
	v.SetDefault("model.pool_size", d.Model.PoolSize)
	v.SetDefault("model.acquire_timeout", d.Model.AcquireTimeout)
	v.SetDefault("model.num_threads", d.Model.NumThreads)
	v.SetDefault("model.remote_url", d.Model.RemoteURL)
	v.SetDefault("model.remote_timeout", d.Model.RemoteTimeout)

	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.addr", d.Cache.Addr)
	v.SetDefault("cache.password", d.Cache.Password)
	v.SetDefault("cache.db", d.Cache.DB)
	v.SetDefault("cache.ttl", d.Cache.TTL)

	v.SetDefault("jobs.pool_check", d.Jobs.PoolCheck)
	v.SetDefault("jobs.stats", d.Jobs.Stats)
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            ":7860",
			Mode:            "debug",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		CORS: CORSConfig{
			AllowOrigins:     []string{"*"},
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		},
		Upload: UploadConfig{
			MaxSize: 20 * 1024 * 1024,
			AllowedTypes: []string{
				"image/jpeg", "image/png", "image/webp",
				"image/bmp", "image/tiff", "image/gif",
			},
		},
		Model: ModelConfig{
			Backend:        BackendONNX,
			Path:           "./models/birefnet.onnx",
			LibraryPath:    "./lib/libonnxruntime.so",
			Device:         DeviceAuto,
			InputName:      "input_image",
			OutputName:     "output_image",
			InputSize:      1024,
			PoolSize:       2,
			AcquireTimeout: 30 * time.Second,
			NumThreads:     0,
			RemoteURL:      "http://127.0.0.1:8188/api/birefnet",
			RemoteTimeout:  60 * time.Second,
		},
		Cache: CacheConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			DB:      0,
			TTL:     time.Hour,
		},
		Jobs: JobsConfig{
			PoolCheck: "@every 1m",
			Stats:     "@every 5m",
		},
	}
}

// Validate 检查无法启动服务的配置
func (c *Config) Validate() error {
	var errs []error

	if c.Upload.MaxSize <= 0 {
		errs = append(errs, fmt.Errorf("upload.max_size must be positive, got %d", c.Upload.MaxSize))
	}

	switch c.Model.Backend {
	case BackendONNX:
		if c.Model.Path == "" {
			errs = append(errs, errors.New("model.path is required for the onnx backend"))
		}
	case BackendRemote:
		if c.Model.RemoteURL == "" {
			errs = append(errs, errors.New("model.remote_url is required for the remote backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown model.backend %q", c.Model.Backend))
	}

	switch c.Model.Device {
	case DeviceAuto, DeviceCUDA, DeviceCPU:
	default:
		errs = append(errs, fmt.Errorf("unknown model.device %q", c.Model.Device))
	}

	if c.Model.InputSize < 1 {
		errs = append(errs, fmt.Errorf("model.input_size must be >= 1, got %d", c.Model.InputSize))
	}
	if c.Model.PoolSize < 1 {
		errs = append(errs, fmt.Errorf("model.pool_size must be >= 1, got %d", c.Model.PoolSize))
	}

	return errors.Join(errs...)
}
