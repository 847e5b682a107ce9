package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bobarin/voicebox/internal/api"
	"github.com/bobarin/voicebox/internal/config"
	"github.com/bobarin/voicebox/internal/events"
	"github.com/bobarin/voicebox/internal/jobs"
	"github.com/bobarin/voicebox/internal/models"
	"github.com/bobarin/voicebox/internal/references"
	"github.com/bobarin/voicebox/internal/services"
	"github.com/bobarin/voicebox/internal/worker"
)

func main() {
	log.Println("Starting Voicebox API...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Reference audio tree
	store, err := references.NewStore(cfg.ReferenceAudioRoot)
	if err != nil {
		log.Fatalf("Failed to open reference audio: %v", err)
	}
	log.Printf("Reference audio root: %s", store.Root())

	// External tools
	registry := jobs.NewRegistry(cfg.CancelGracePeriod)
	ffmpegSvc := services.NewFFmpegService(cfg.FFmpegPath)
	f5Svc := services.NewF5TTSService(cfg.F5TTSBinary, cfg.F5TTSModel, registry)
	for _, tool := range []string{f5Svc.Binary(), ffmpegSvc.Binary()} {
		if !services.ToolAvailable(tool) {
			log.Printf("WARNING: %s not found on PATH; requests that need it will fail", tool)
		}
	}

	transcriber, err := newTranscriber(ctx, cfg, ffmpegSvc)
	if err != nil {
		log.Fatalf("Failed to initialize transcriber: %v", err)
	}

	publisher, err := newPublisher(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize job events: %v", err)
	}
	defer publisher.Close()

	w := worker.New(
		registry,
		references.NewResolver(store, transcriber, cfg.CacheTranscripts),
		f5Svc,
		services.NewPostProcessor(ffmpegSvc),
		publisher,
		cfg.OutputDir,
	)

	handler := api.NewHandler(w, store, api.HandlerConfig{
		Defaults: models.RequestDefaults{
			NFESteps:          cfg.DefaultNFESteps,
			CrossfadeDuration: cfg.DefaultCrossFade,
			ReferenceAudioID:  cfg.DefaultReferenceAudio,
		},
		Tools:          []string{f5Svc.Binary(), ffmpegSvc.Binary()},
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	router := api.NewRouter(handler, api.RouterConfig{
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
		StaticDir:          cfg.StaticDir,
		MaxUploadBytes:     cfg.MaxUploadBytes,
	})

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		log.Fatalf("Failed to listen on :%s: %v", cfg.APIPort, err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("API server listening on :%s", cfg.APIPort)
		err := serve(gctx, server, ln, 30*time.Second)

		// Synthesis children must not outlive the server.
		for _, snap := range registry.List() {
			w.Cancel(snap.RequestID)
		}
		return err
	})

	g.Go(func() error {
		return worker.NewSweeper(cfg.OutputDir, cfg.OutputRetention, cfg.SweepInterval, registry).Start(gctx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server exited")
}

// newTranscriber returns the provider used when a reference has no text, or nil.
func newTranscriber(ctx context.Context, cfg *config.Config, ffmpegSvc *services.FFmpegService) (services.Transcriber, error) {
	switch cfg.TranscriberMode() {
	case config.TranscriberOpenAI:
		log.Println("Transcriber: OpenAI Whisper")
		return services.NewOpenAIService(cfg.OpenAIKey), nil
	case config.TranscriberGemini:
		svc, err := services.NewGeminiService(ctx, cfg.GeminiKey, cfg.GeminiTranscribeModel)
		if err != nil {
			return nil, err
		}
		log.Printf("Transcriber: Gemini (model: %s)", cfg.GeminiTranscribeModel)
		return svc, nil
	case config.TranscriberWhisperCPP:
		log.Printf("Transcriber: whisper.cpp (model: %s)", cfg.WhisperModelPath)
		return services.NewWhisperCPPService(cfg.WhisperCPPPath, cfg.WhisperModelPath, ffmpegSvc), nil
	default:
		log.Println("Transcriber: none (references without text are sent without ref_text)")
		return nil, nil
	}
}

// newPublisher connects every configured event sink. With none configured, events are dropped.
func newPublisher(cfg *config.Config) (events.Publisher, error) {
	var sinks events.Fanout
	if cfg.RedisURL != "" {
		redisPub, err := events.NewRedisPublisher(cfg.RedisURL, cfg.RedisEventsChannel)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, redisPub)
		log.Printf("Publishing job events to Redis channel %s", cfg.RedisEventsChannel)
	}
	if cfg.NATSURL != "" {
		natsPub, err := events.NewNATSPublisher(cfg.NATSURL, cfg.NATSEventsSubject)
		if err != nil {
			sinks.Close()
			return nil, err
		}
		sinks = append(sinks, natsPub)
		log.Printf("Publishing job events to NATS subject %s", cfg.NATSEventsSubject)
	}

	// One queue in front of all sinks keeps events in order without blocking synthesis.
	switch len(sinks) {
	case 0:
		return events.Nop{}, nil
	case 1:
		return events.NewAsync(sinks[0], events.DefaultQueueSize), nil
	}
	return events.NewAsync(sinks, events.DefaultQueueSize), nil
}
