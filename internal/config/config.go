// Package config loads application configuration from defaults, an optional
// YAML or JSON file and VCOMPRESS_* environment variables, in that order.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete application configuration.
type Config struct {
	Compression CompressionConfig `yaml:"compression" json:"compression"`
	FFmpeg      FFmpegConfig      `yaml:"ffmpeg" json:"ffmpeg"`
	Logging     LoggingConfig     `yaml:"logging" json:"logging"`
	Server      ServerConfig      `yaml:"server" json:"server"`
	Database    DatabaseConfig    `yaml:"database" json:"database"`
	Jobs        JobsConfig        `yaml:"jobs" json:"jobs"`
	Watch       WatchConfig       `yaml:"watch" json:"watch"`
}

// CompressionConfig holds the default export target.
type CompressionConfig struct {
	VideoSize         string  `yaml:"video_size" json:"video_size" env:"VCOMPRESS_VIDEO_SIZE" default:"1280x720"`
	FileType          string  `yaml:"file_type" json:"file_type" env:"VCOMPRESS_FILE_TYPE" default:"mp4"`
	FrameRate         float64 `yaml:"frame_rate" json:"frame_rate" env:"VCOMPRESS_FRAME_RATE" default:"30"`
	KeepPartialOutput bool    `yaml:"keep_partial_output" json:"keep_partial_output" env:"VCOMPRESS_KEEP_PARTIAL" default:"false"`
}

// FFmpegConfig locates the FFmpeg binaries.
type FFmpegConfig struct {
	FFmpegPath        string `yaml:"ffmpeg_path" json:"ffmpeg_path" env:"FFMPEG_PATH" default:"ffmpeg"`
	FFprobePath       string `yaml:"ffprobe_path" json:"ffprobe_path" env:"FFPROBE_PATH" default:"ffprobe"`
	HardwareDetection bool   `yaml:"hardware_detection" json:"hardware_detection" env:"VCOMPRESS_HW_DETECTION" default:"true"`
}

// LoggingConfig controls the root logger.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level" env:"VCOMPRESS_LOG_LEVEL" default:"info"`
	Format string `yaml:"format" json:"format" env:"VCOMPRESS_LOG_FORMAT" default:"text"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Host            string        `yaml:"host" json:"host" env:"VCOMPRESS_HOST" default:"0.0.0.0"`
	Port            int           `yaml:"port" json:"port" env:"VCOMPRESS_PORT" default:"8080"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" env:"VCOMPRESS_SHUTDOWN_TIMEOUT" default:"30s"`
}

// DatabaseConfig selects the job store.
type DatabaseConfig struct {
	Type    string `yaml:"type" json:"type" env:"VCOMPRESS_DB_TYPE" default:"sqlite"`
	Path    string `yaml:"path" json:"path" env:"VCOMPRESS_DB_PATH"`
	URL     string `yaml:"url" json:"-" env:"VCOMPRESS_DB_URL"`
	DataDir string `yaml:"data_dir" json:"data_dir" env:"VCOMPRESS_DATA_DIR" default:"./data"`
}

// JobsConfig controls the job manager.
type JobsConfig struct {
	MaxConcurrent int    `yaml:"max_concurrent" json:"max_concurrent" env:"VCOMPRESS_MAX_CONCURRENT" default:"2"`
	QueueSize     int    `yaml:"queue_size" json:"queue_size" env:"VCOMPRESS_QUEUE_SIZE" default:"100"`
	OutputDir     string `yaml:"output_dir" json:"output_dir" env:"VCOMPRESS_OUTPUT_DIR"`
}

// WatchConfig controls the inbox watcher.
type WatchConfig struct {
	Enabled    bool          `yaml:"enabled" json:"enabled" env:"VCOMPRESS_WATCH_ENABLED" default:"false"`
	InboxDir   string        `yaml:"inbox_dir" json:"inbox_dir" env:"VCOMPRESS_WATCH_INBOX"`
	Debounce   time.Duration `yaml:"debounce" json:"debounce" env:"VCOMPRESS_WATCH_DEBOUNCE" default:"2s"`
	Extensions []string      `yaml:"extensions" json:"extensions" env:"VCOMPRESS_WATCH_EXTENSIONS" default:".mp4,.mov,.m4v"`
}

// Manager owns the loaded configuration.
type Manager struct {
	config     *Config
	configPath string
	mu         sync.RWMutex
}

var (
	globalManager *Manager
	once          sync.Once
)

// GetManager returns the process-wide configuration manager.
func GetManager() *Manager {
	once.Do(func() {
		globalManager = NewManager()
	})
	return globalManager
}

// NewManager creates a manager holding the default configuration.
func NewManager() *Manager {
	return &Manager{config: DefaultConfig()}
}

// DefaultConfig returns the configuration described by the default tags.
func DefaultConfig() *Config {
	cfg := &Config{}
	if err := applyDefaults(reflect.ValueOf(cfg).Elem()); err != nil {
		panic(fmt.Sprintf("invalid default tag: %v", err))
	}
	return cfg
}

// Load loads configuration from the given file (optional) and environment.
func (m *Manager) Load(configPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg := DefaultConfig()

	if configPath != "" {
		if !fileExists(configPath) {
			return fmt.Errorf("config file not found: %s", configPath)
		}
		if err := loadFromFile(configPath, cfg); err != nil {
			return fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem()); err != nil {
		return fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	applyDerived(cfg)

	m.config = cfg
	m.configPath = configPath
	return nil
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c := *m.config
	c.Watch.Extensions = append([]string(nil), m.config.Watch.Extensions...)
	return &c
}

// Path returns the file the configuration was loaded from.
func (m *Manager) Path() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.configPath
}

// Save writes the current configuration to path.
func (m *Manager) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return saveToFile(path, m.config)
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	case ".json":
		return json.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("unsupported config file format: %s", filepath.Ext(path))
	}
}

func saveToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	case ".json":
		data, err = json.MarshalIndent(cfg, "", "  ")
	default:
		return fmt.Errorf("unsupported config file format: %s", filepath.Ext(path))
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

func applyDefaults(v reflect.Value) error {
	return walkFields(v, func(field reflect.Value, sf reflect.StructField) error {
		def := sf.Tag.Get("default")
		if def == "" {
			return nil
		}
		return setFieldValue(field, def)
	})
}

// loadStructFromEnv only touches fields whose variable is set, so file
// values survive when the environment is silent.
func loadStructFromEnv(v reflect.Value) error {
	return walkFields(v, func(field reflect.Value, sf reflect.StructField) error {
		name := sf.Tag.Get("env")
		if name == "" {
			return nil
		}
		value, ok := os.LookupEnv(name)
		if !ok || value == "" {
			return nil
		}
		return setFieldValue(field, value)
	})
}

func walkFields(v reflect.Value, fn func(reflect.Value, reflect.StructField) error) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		sf := t.Field(i)
		if !field.CanSet() {
			continue
		}

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Time{}) {
			if err := walkFields(field, fn); err != nil {
				return err
			}
			continue
		}

		if err := fn(field, sf); err != nil {
			return fmt.Errorf("failed to set field %s: %w", sf.Name, err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %v", field.Type())
		}
		parts := strings.Split(value, ",")
		for i, p := range parts {
			parts[i] = strings.TrimSpace(p)
		}
		field.Set(reflect.ValueOf(parts))
	default:
		return fmt.Errorf("unsupported field type: %v", field.Kind())
	}
	return nil
}

// Validate checks values that would otherwise fail late.
func Validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	if cfg.Database.Type != "sqlite" && cfg.Database.Type != "postgres" {
		return fmt.Errorf("unsupported database type: %s", cfg.Database.Type)
	}
	if cfg.Database.Type == "postgres" && cfg.Database.URL == "" {
		return fmt.Errorf("postgres database requires a url")
	}
	if cfg.Jobs.MaxConcurrent < 1 {
		return fmt.Errorf("invalid max concurrent jobs: %d", cfg.Jobs.MaxConcurrent)
	}
	if cfg.Compression.FrameRate <= 0 {
		return fmt.Errorf("invalid frame rate: %g", cfg.Compression.FrameRate)
	}
	if !validVideoSize(cfg.Compression.VideoSize) {
		return fmt.Errorf("invalid video size: %s", cfg.Compression.VideoSize)
	}
	if !validFileType(cfg.Compression.FileType) {
		return fmt.Errorf("invalid file type: %s", cfg.Compression.FileType)
	}
	if cfg.Watch.Enabled && cfg.Watch.InboxDir == "" {
		return fmt.Errorf("watch folder enabled without inbox_dir")
	}
	return nil
}

// The compression package owns the canonical parsers; config only needs to
// reject obvious typos without importing it.
func validVideoSize(s string) bool {
	switch strings.ToLower(s) {
	case "640x480", "480p", "960x540", "540p", "1280x720", "720p", "1920x1080", "1080p", "3840x2160", "2160p", "4k":
		return true
	}
	return false
}

func validFileType(s string) bool {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "mp4", "mov":
		return true
	}
	return false
}

func applyDerived(cfg *Config) {
	if cfg.Database.Type == "sqlite" && cfg.Database.Path == "" {
		cfg.Database.Path = filepath.Join(cfg.Database.DataDir, "vcompress.db")
	}
	if cfg.Jobs.OutputDir == "" {
		cfg.Jobs.OutputDir = filepath.Join(cfg.Database.DataDir, "output")
	}
	if cfg.Jobs.QueueSize < cfg.Jobs.MaxConcurrent {
		cfg.Jobs.QueueSize = cfg.Jobs.MaxConcurrent
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Get returns the current global configuration
func Get() *Config {
	return GetManager().Get()
}

// Load loads the global configuration from the specified path
func Load(configPath string) error {
	return GetManager().Load(configPath)
}
