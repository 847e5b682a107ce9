package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Transcriber modes.
const (
	TranscriberAuto       = "auto"
	TranscriberOpenAI     = "openai"
	TranscriberGemini     = "gemini"
	TranscriberWhisperCPP = "whispercpp"
	TranscriberNone       = "none"
)

type Config struct {
	// Server
	APIPort            string
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)
	StaticDir          string // Browser client served at / (empty = disabled)
	MaxUploadBytes     int64

	// Inference
	F5TTSBinary       string
	F5TTSModel        string
	FFmpegPath        string
	DefaultNFESteps   int
	DefaultCrossFade  float64
	CancelGracePeriod time.Duration

	// Output
	OutputDir       string
	OutputRetention time.Duration // 0 = keep forever
	SweepInterval   time.Duration

	// References
	ReferenceAudioRoot    string
	DefaultReferenceAudio string // <collection>/<filename>
	CacheTranscripts      bool   // write automatic transcripts next to the audio

	// Transcription (used when a reference has no text)
	Transcriber           string
	OpenAIKey             string
	GeminiKey             string
	GeminiTranscribeModel string
	WhisperCPPPath        string
	WhisperModelPath      string

	// Job events (each sink disabled when its URL is empty)
	RedisURL           string
	RedisEventsChannel string
	NATSURL            string
	NATSEventsSubject  string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:               getEnv("API_PORT", "8000"),
		CorsAllowedOrigins:    getEnv("CORS_ALLOWED_ORIGINS", ""),
		StaticDir:             getEnv("STATIC_DIR", "static"),
		MaxUploadBytes:        int64(getEnvInt("MAX_UPLOAD_BYTES", 10<<20)),
		F5TTSBinary:           getEnv("F5TTS_CLI", "f5-tts_infer-cli"),
		F5TTSModel:            getEnv("F5TTS_MODEL", "F5TTS_v1_Base"),
		FFmpegPath:            getEnv("FFMPEG_PATH", "ffmpeg"),
		DefaultNFESteps:       getEnvInt("DEFAULT_NFE_STEPS", 32),
		DefaultCrossFade:      getEnvFloat("DEFAULT_CROSS_FADE", 0.15),
		CancelGracePeriod:     getEnvDuration("CANCEL_GRACE_PERIOD", 5*time.Second),
		OutputDir:             getEnv("OUTPUT_DIR", "output"),
		OutputRetention:       getEnvDuration("OUTPUT_RETENTION", 24*time.Hour),
		SweepInterval:         getEnvDuration("SWEEP_INTERVAL", 10*time.Minute),
		ReferenceAudioRoot:    getEnv("REFERENCE_AUDIO_ROOT", "reference_audio"),
		DefaultReferenceAudio: getEnv("DEFAULT_REFERENCE_AUDIO", "default/basic_ref_en.wav"),
		CacheTranscripts:      getEnvBool("CACHE_TRANSCRIPTS", true),
		Transcriber:           strings.ToLower(getEnv("TRANSCRIBER", TranscriberAuto)),
		OpenAIKey:             getEnv("OPENAI_API_KEY", ""),
		GeminiKey:             getEnv("GEMINI_API_KEY", ""),
		GeminiTranscribeModel: getEnv("GEMINI_TRANSCRIBE_MODEL", "gemini-2.5-flash"),
		WhisperCPPPath:        getEnv("WHISPER_CPP_PATH", "whisper-cli"),
		WhisperModelPath:      getEnv("WHISPER_MODEL_PATH", ""),
		RedisURL:              getEnv("REDIS_URL", ""),
		RedisEventsChannel:    getEnv("REDIS_EVENTS_CHANNEL", "tts:jobs"),
		NATSURL:               getEnv("NATS_URL", ""),
		NATSEventsSubject:     getEnv("NATS_EVENTS_SUBJECT", "tts.jobs"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail on the first request.
func (c *Config) Validate() error {
	if c.DefaultNFESteps <= 0 {
		return fmt.Errorf("DEFAULT_NFE_STEPS must be positive, got %d", c.DefaultNFESteps)
	}
	if c.DefaultCrossFade < 0 {
		return fmt.Errorf("DEFAULT_CROSS_FADE must not be negative, got %v", c.DefaultCrossFade)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	if c.OutputRetention < 0 {
		return fmt.Errorf("OUTPUT_RETENTION must not be negative, got %v", c.OutputRetention)
	}

	switch c.Transcriber {
	case TranscriberAuto, TranscriberNone:
	case TranscriberOpenAI:
		if c.OpenAIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when TRANSCRIBER=openai")
		}
	case TranscriberGemini:
		if c.GeminiKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when TRANSCRIBER=gemini")
		}
	case TranscriberWhisperCPP:
		if c.WhisperModelPath == "" {
			return fmt.Errorf("WHISPER_MODEL_PATH is required when TRANSCRIBER=whispercpp")
		}
	default:
		return fmt.Errorf("unknown TRANSCRIBER %q (auto, openai, gemini, whispercpp, none)", c.Transcriber)
	}
	return nil
}

// TranscriberMode resolves "auto" to the first provider that is configured.
func (c *Config) TranscriberMode() string {
	if c.Transcriber != TranscriberAuto {
		return c.Transcriber
	}
	switch {
	case c.OpenAIKey != "":
		return TranscriberOpenAI
	case c.GeminiKey != "":
		return TranscriberGemini
	case c.WhisperModelPath != "":
		return TranscriberWhisperCPP
	}
	return TranscriberNone
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}
