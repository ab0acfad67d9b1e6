// Package config loads receiver settings from YAML.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/opd-ai/streamaudio/apperr"
	"github.com/opd-ai/streamaudio/audio"
	"github.com/opd-ai/streamaudio/jitter"
	"github.com/opd-ai/streamaudio/notify"
	"github.com/opd-ai/streamaudio/sink"
	"github.com/opd-ai/streamaudio/transport"
)

// Framing modes.
const (
	FramingCounter = "counter"
	FramingRTP     = "rtp"
)

// Sink backends.
const (
	BackendClock = "clock"
	BackendNull  = "null"
)

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config is the complete receiver configuration.
type Config struct {
	RemoteAddr     string        `yaml:"remote_addr"`
	LocalAddr      string        `yaml:"local_addr"`
	Framing        string        `yaml:"framing"`
	Codec          string        `yaml:"codec"`
	Input          audio.Format  `yaml:"input"`
	Output         audio.Format  `yaml:"output"`
	Jitter         jitter.Config `yaml:"jitter"`
	Sink           SinkConfig    `yaml:"sink"`
	NotifyInterval time.Duration `yaml:"notify_interval"`
	LogLevel       string        `yaml:"log_level"`
	LogFormat      string        `yaml:"log_format"`
	MetricsAddr    string        `yaml:"metrics_addr,omitempty"`
}

// SinkConfig selects the playback backend.
type SinkConfig struct {
	Backend string        `yaml:"backend"`
	WAVPath string        `yaml:"wav_path,omitempty"`
	Period  time.Duration `yaml:"period"`
}

// Default returns a configuration for a 44.1 kHz stereo float stream.
func Default() *Config {
	return &Config{
		LocalAddr:      transport.DefaultLocalAddr,
		Framing:        FramingCounter,
		Codec:          audio.CodecFloat32,
		Input:          audio.Format{SampleRate: 44100, Channels: 2},
		Output:         audio.Format{SampleRate: 44100, Channels: 2},
		Jitter:         jitter.DefaultConfig(),
		Sink:           SinkConfig{Backend: BackendClock, Period: sink.DefaultPeriod},
		NotifyInterval: notify.DefaultMinInterval,
		LogLevel:       "info",
		LogFormat:      LogFormatText,
	}
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	conf := Default()
	if len(bytes.TrimSpace(data)) > 0 {
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(conf); err != nil {
			return nil, fmt.Errorf("%w: could not parse config: %v", apperr.ErrInvalidArgument, err)
		}
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.NewIOError("read config", path, err)
	}

	conf, err := Parse(data)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "Load",
		"path":     path,
		"framing":  conf.Framing,
		"codec":    conf.Codec,
	}).Debug("Loaded configuration")
	return conf, nil
}

// Validate checks every section. RemoteAddr may be empty; it is supplied
// when playback starts.
func (c *Config) Validate() error {
	switch c.Framing {
	case FramingCounter, FramingRTP:
	default:
		return apperr.Invalid("unknown framing %q", c.Framing)
	}
	switch c.Codec {
	case audio.CodecOpus, audio.CodecPCM16, audio.CodecFloat32:
	default:
		return apperr.Invalid("unknown codec %q", c.Codec)
	}
	if err := c.Input.Validate(); err != nil {
		return fmt.Errorf("input: %w", err)
	}
	if err := c.Output.Validate(); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	if err := c.Jitter.Validate(); err != nil {
		return fmt.Errorf("jitter: %w", err)
	}
	if err := c.Sink.Validate(); err != nil {
		return fmt.Errorf("sink: %w", err)
	}
	if c.NotifyInterval < 0 {
		return apperr.Invalid("notify interval cannot be negative, got %v", c.NotifyInterval)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return apperr.Invalid("log level: %v", err)
	}
	switch c.LogFormat {
	case LogFormatText, LogFormatJSON:
	default:
		return apperr.Invalid("unknown log format %q", c.LogFormat)
	}
	return nil
}

// UnmarshalYAML decodes the section over the current values. A YAML null
// for backend selects BackendNull; yaml.v3 would otherwise leave the field
// unchanged.
func (s *SinkConfig) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("sink: expected a mapping, got %s", value.ShortTag())
	}

	nullBackend := false
	for i := 0; i+1 < len(value.Content); i += 2 {
		key, val := value.Content[i], value.Content[i+1]
		switch key.Value {
		case "backend":
			nullBackend = val.ShortTag() == "!!null"
		case "wav_path", "period":
		default:
			return fmt.Errorf("line %d: field %s not found in type config.SinkConfig", key.Line, key.Value)
		}
	}

	type plain SinkConfig
	if err := value.Decode((*plain)(s)); err != nil {
		return err
	}
	if nullBackend {
		s.Backend = BackendNull
	}
	return nil
}

// Validate checks the backend selection.
func (s SinkConfig) Validate() error {
	switch s.Backend {
	case BackendClock, BackendNull:
	default:
		return apperr.Invalid("unknown backend %q", s.Backend)
	}
	if s.Period < 0 {
		return apperr.Invalid("period cannot be negative, got %v", s.Period)
	}
	if s.Backend == BackendNull && s.WAVPath != "" {
		return apperr.Invalid("wav_path requires the clock backend")
	}
	return nil
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
