package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	Storage       StorageConfig       `yaml:"storage"`
	Capture       CaptureConfig       `yaml:"capture"`
	Mixer         MixerConfig         `yaml:"mixer"`
	Recorder      RecorderConfig      `yaml:"recorder"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Chat          ChatConfig          `yaml:"chat"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// StorageConfig contains on-disk layout configuration
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// CaptureConfig contains audio capture configuration
type CaptureConfig struct {
	SampleRate   int    `yaml:"sample_rate"`
	FrameSize    int    `yaml:"frame_size"`    // samples per delivered frame
	SystemDevice string `yaml:"system_device"` // loopback/monitor device name
	MicDevice    string `yaml:"mic_device"`    // microphone device name
}

// MixerConfig contains stream mixing configuration
type MixerConfig struct {
	SystemGain float64 `yaml:"system_gain"`
	MicGain    float64 `yaml:"mic_gain"` // mic boost; laptop mics are quiet next to loopback audio
}

// RecorderConfig contains encoded chunk accumulation configuration
type RecorderConfig struct {
	MIMEType      string  `yaml:"mime_type"`
	ChunkInterval float64 `yaml:"chunk_interval"` // seconds between encoder chunk deliveries
}

// TranscriptionConfig contains external transcription engine configuration
type TranscriptionConfig struct {
	EnginePath string `yaml:"engine_path"`
	ModelPath  string `yaml:"model_path"`
	Language   string `yaml:"language"`
	Timeout    int    `yaml:"timeout"` // seconds
}

// ChatConfig contains chat completion endpoint configuration
type ChatConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	Timeout     int     `yaml:"timeout"` // seconds
	MaxRetries  int     `yaml:"max_retries"`
}

// MetricsConfig contains Prometheus exposition configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns a configuration with working defaults for a local install.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	dataDir := filepath.Join(home, ".meetscribe")

	return &Config{
		Storage: StorageConfig{
			DataDir: dataDir,
		},
		Capture: CaptureConfig{
			SampleRate:   16000,
			FrameSize:    1024,
			SystemDevice: "default.monitor",
			MicDevice:    "default",
		},
		Mixer: MixerConfig{
			SystemGain: 1.0,
			MicGain:    2.0,
		},
		Recorder: RecorderConfig{
			MIMEType:      "audio/webm;codecs=opus",
			ChunkInterval: 1.0,
		},
		Transcription: TranscriptionConfig{
			EnginePath: "whisper-cli",
			ModelPath:  filepath.Join(dataDir, "models", "ggml-base.en.bin"),
			Language:   "en",
			Timeout:    600,
		},
		Chat: ChatConfig{
			Endpoint:    "https://api.groq.com/openai/v1/chat/completions",
			Model:       "llama-3.1-70b-versatile",
			Temperature: 0.3,
			Timeout:     30,
			MaxRetries:  2,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: "127.0.0.1:9477",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads and parses the configuration file, applying defaults for
// fields the file does not set.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}

	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}

	if err := c.Mixer.Validate(); err != nil {
		return fmt.Errorf("mixer config: %w", err)
	}

	if err := c.Recorder.Validate(); err != nil {
		return fmt.Errorf("recorder config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.Chat.Validate(); err != nil {
		return fmt.Errorf("chat config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates storage configuration
func (s *StorageConfig) Validate() error {
	if s.DataDir == "" {
		return fmt.Errorf("data_dir cannot be empty")
	}

	return nil
}

// Validate validates capture configuration
func (c *CaptureConfig) Validate() error {
	if c.SampleRate < 8000 || c.SampleRate > 48000 {
		return fmt.Errorf("sample_rate must be between 8000 and 48000 Hz, got %d", c.SampleRate)
	}

	if c.FrameSize < 64 || c.FrameSize > 16384 {
		return fmt.Errorf("frame_size must be between 64 and 16384 samples, got %d", c.FrameSize)
	}

	if c.MicDevice == "" {
		return fmt.Errorf("mic_device cannot be empty")
	}

	return nil
}

// Validate validates mixer configuration
func (m *MixerConfig) Validate() error {
	if m.SystemGain <= 0 {
		return fmt.Errorf("system_gain must be positive, got %f", m.SystemGain)
	}

	if m.MicGain <= 0 {
		return fmt.Errorf("mic_gain must be positive, got %f", m.MicGain)
	}

	return nil
}

// Validate validates recorder configuration
func (r *RecorderConfig) Validate() error {
	if r.MIMEType == "" {
		return fmt.Errorf("mime_type cannot be empty")
	}

	if r.ChunkInterval <= 0 {
		return fmt.Errorf("chunk_interval must be positive, got %f", r.ChunkInterval)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	if t.EnginePath == "" {
		return fmt.Errorf("engine_path cannot be empty")
	}

	if t.ModelPath == "" {
		return fmt.Errorf("model_path cannot be empty")
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	return nil
}

// Validate validates chat configuration
func (c *ChatConfig) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if c.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}

	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", c.Temperature)
	}

	if c.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", c.Timeout)
	}

	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", c.MaxRetries)
	}

	return nil
}

// Validate validates metrics configuration
func (m *MetricsConfig) Validate() error {
	if m.Enabled && m.Address == "" {
		return fmt.Errorf("address cannot be empty when metrics are enabled")
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// APIKeyOrEnv returns the configured chat API key, falling back to the
// MEETSCRIBE_API_KEY environment variable.
func (c *ChatConfig) APIKeyOrEnv() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	return os.Getenv("MEETSCRIBE_API_KEY")
}

// GetChunkInterval returns the encoder chunk delivery interval as a time.Duration
func (r *RecorderConfig) GetChunkInterval() time.Duration {
	return time.Duration(r.ChunkInterval * float64(time.Second))
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetTimeoutDuration returns the chat request timeout as a time.Duration
func (c *ChatConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}
