package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is a one-time snapshot of the effective settings. The audio
// pipeline reads from this struct only; viper is consulted once at startup.
type Config struct {
	HTTP   HTTPConfig
	Audio  AudioConfig
	Gate   GateConfig
	Decode DecodeConfig
	Engine EngineConfig
}

type HTTPConfig struct {
	Port int
}

type AudioConfig struct {
	// SampleRate is the canonical rate everything downstream of the
	// resampler runs at.
	SampleRate        int
	DefaultSourceRate int
	MaxBufferSeconds  float64
	LinearResample    bool
}

type GateConfig struct {
	// Aggressiveness ranges 0 (permissive) to 3 (strict).
	Aggressiveness int
	FrameMillis    int
	HangoverMillis int
}

// Final-decode overwrite policies. "always" matches the historical
// behavior: a quiet re-check window can blank a good final transcript.
// "keep_nonempty" keeps the last non-empty text instead.
const (
	FinalOverwriteAlways       = "always"
	FinalOverwriteKeepNonEmpty = "keep_nonempty"
)

type DecodeConfig struct {
	WindowSeconds      float64
	StepSeconds        float64
	FinalUpdateSeconds float64
	MinWindowSeconds   float64
	MinFinalSeconds    float64
	PollInterval       time.Duration
	FinalOverwrite     string
}

type EngineConfig struct {
	Endpoint     string
	APIKey       string
	Timeout      time.Duration
	OutputFormat string // "json" or "text"
}

func SetDefaults() {
	viper.SetDefault("http.port", 7862)

	viper.SetDefault("audio.sample_rate", 16000)
	viper.SetDefault("audio.default_source_rate", 48000)
	viper.SetDefault("audio.max_buffer_seconds", 90.0)
	viper.SetDefault("audio.linear_resample", false)

	viper.SetDefault("gate.aggressiveness", 2)
	viper.SetDefault("gate.frame_millis", 20)
	viper.SetDefault("gate.hangover_millis", 300)

	viper.SetDefault("decode.window_seconds", 8.0)
	viper.SetDefault("decode.step_seconds", 0.8)
	viper.SetDefault("decode.final_update_seconds", 3.0)
	viper.SetDefault("decode.min_window_seconds", 0.5)
	viper.SetDefault("decode.min_final_seconds", 1.0)
	viper.SetDefault("decode.poll_millis", 30)
	viper.SetDefault("decode.final_overwrite", FinalOverwriteAlways)

	viper.SetDefault("engine.endpoint", "http://localhost:9090/transcribe")
	viper.SetDefault("engine.api_key", "")
	viper.SetDefault("engine.timeout_seconds", 30)
	viper.SetDefault("engine.output_format", "json")
}

func FromViper() (*Config, error) {
	cfg := &Config{
		HTTP: HTTPConfig{
			Port: viper.GetInt("http.port"),
		},
		Audio: AudioConfig{
			SampleRate:        viper.GetInt("audio.sample_rate"),
			DefaultSourceRate: viper.GetInt("audio.default_source_rate"),
			MaxBufferSeconds:  viper.GetFloat64("audio.max_buffer_seconds"),
			LinearResample:    viper.GetBool("audio.linear_resample"),
		},
		Gate: GateConfig{
			Aggressiveness: viper.GetInt("gate.aggressiveness"),
			FrameMillis:    viper.GetInt("gate.frame_millis"),
			HangoverMillis: viper.GetInt("gate.hangover_millis"),
		},
		Decode: DecodeConfig{
			WindowSeconds:      viper.GetFloat64("decode.window_seconds"),
			StepSeconds:        viper.GetFloat64("decode.step_seconds"),
			FinalUpdateSeconds: viper.GetFloat64("decode.final_update_seconds"),
			MinWindowSeconds:   viper.GetFloat64("decode.min_window_seconds"),
			MinFinalSeconds:    viper.GetFloat64("decode.min_final_seconds"),
			PollInterval:       time.Duration(viper.GetInt("decode.poll_millis")) * time.Millisecond,
			FinalOverwrite:     viper.GetString("decode.final_overwrite"),
		},
		Engine: EngineConfig{
			Endpoint:     viper.GetString("engine.endpoint"),
			APIKey:       viper.GetString("engine.api_key"),
			Timeout:      time.Duration(viper.GetInt("engine.timeout_seconds")) * time.Second,
			OutputFormat: viper.GetString("engine.output_format"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive, got %d", c.Audio.SampleRate)
	}
	if c.Audio.MaxBufferSeconds <= 0 {
		return fmt.Errorf("audio.max_buffer_seconds must be positive, got %v", c.Audio.MaxBufferSeconds)
	}
	if c.Gate.Aggressiveness < 0 || c.Gate.Aggressiveness > 3 {
		return fmt.Errorf("gate.aggressiveness must be 0..3, got %d", c.Gate.Aggressiveness)
	}
	if c.Gate.FrameMillis != 10 && c.Gate.FrameMillis != 20 && c.Gate.FrameMillis != 30 {
		return fmt.Errorf("gate.frame_millis must be 10, 20 or 30, got %d", c.Gate.FrameMillis)
	}
	if c.Decode.StepSeconds <= 0 || c.Decode.FinalUpdateSeconds <= 0 {
		return fmt.Errorf("decode cadences must be positive")
	}
	switch c.Decode.FinalOverwrite {
	case FinalOverwriteAlways, FinalOverwriteKeepNonEmpty:
	default:
		return fmt.Errorf("decode.final_overwrite must be %q or %q, got %q",
			FinalOverwriteAlways, FinalOverwriteKeepNonEmpty, c.Decode.FinalOverwrite)
	}
	if c.Engine.OutputFormat != "json" && c.Engine.OutputFormat != "text" {
		return fmt.Errorf("engine.output_format must be %q or %q, got %q",
			"json", "text", c.Engine.OutputFormat)
	}
	return nil
}
