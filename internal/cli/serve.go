package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	primaryHTTP "meeting-copilot/internal/adapters/primary/http"
	"meeting-copilot/internal/adapters/secondary/deepgram"
	"meeting-copilot/internal/adapters/secondary/groq"
	"meeting-copilot/internal/adapters/secondary/records"
	redisAdapter "meeting-copilot/internal/adapters/secondary/redis"
	"meeting-copilot/internal/adapters/secondary/rod"
	"meeting-copilot/internal/buildinfo"
	"meeting-copilot/internal/config"
	"meeting-copilot/internal/core/copilot"
	"meeting-copilot/internal/core/services"
	"meeting-copilot/internal/logging"
	"meeting-copilot/internal/observability"
)

// shutdownTimeout bounds leaving every bot once a signal arrives.
const shutdownTimeout = 30 * time.Second

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the control API and the bot pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath, ".env")
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func newLogger(cfg *config.Config) logging.Logger {
	return logging.NewLogger(&logging.Config{
		Level:       logging.Level(cfg.LogLevel),
		ServiceName: buildinfo.ServiceName,
		JSONFormat:  cfg.LogJSON,
		Output:      os.Stdout,
	})
}

// settingsFrom maps configuration onto the per-bot pipeline settings.
func settingsFrom(cfg *config.Config) services.Settings {
	return services.Settings{
		DefaultDisplayName: cfg.BotDisplayName,
		AudioQueueSize:     cfg.Deepgram.AudioQueueSize,
		Engine: copilot.EngineConfig{
			Debounce:            cfg.Copilot.Debounce,
			CarryOver:           cfg.Copilot.CarryOver,
			MinSuggestionLength: cfg.Copilot.MinSuggestionLength,
			Temperature:         cfg.LLM.SuggestionTemperature,
			MaxTokens:           cfg.LLM.SuggestionMaxTokens,
			ShutdownGrace:       cfg.Copilot.ShutdownGrace,
		},
		Summary: copilot.SummarizerConfig{
			MaxChars:    cfg.Copilot.SummaryMaxChars,
			Temperature: cfg.LLM.SummaryTemperature,
			MaxTokens:   cfg.LLM.SummaryMaxTokens,
		},
	}
}

func rodConfigFrom(cfg *config.Config) rod.Config {
	return rod.Config{
		ChromePath:        cfg.Browser.ChromePath,
		Headless:          cfg.Browser.Headless,
		NameInputSelector: cfg.Browser.NameInputSelector,
		JoinButtonTexts:   cfg.Browser.JoinButtonTexts,
		AdmittedSelector:  cfg.Browser.AdmittedSelector,
		NameInputTimeout:  cfg.Browser.NameInputTimeout,
		AdmissionTimeout:  cfg.Browser.AdmissionTimeout,
		ExitPollInterval:  cfg.Browser.ExitPollInterval,
		SampleRate:        cfg.Deepgram.SampleRate,
		AudioQueueSize:    cfg.Deepgram.AudioQueueSize,
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := newLogger(cfg)
	logger.Info("Starting meeting copilot", logging.F("version", buildinfo.String()))

	if cfg.LogJSON {
		gin.SetMode(gin.ReleaseMode)
	}
	metrics := observability.DefaultMetrics()

	broadcaster, err := redisAdapter.NewBroadcasterFromConfig(ctx, redisAdapter.Config{
		Addr:          cfg.Redis.Addr,
		Password:      cfg.Redis.Password,
		DB:            cfg.Redis.DB,
		ChannelPrefix: cfg.Redis.ChannelPrefix,
	}, logger)
	if err != nil {
		return err
	}
	defer broadcaster.Close()

	registry := services.NewMemoryRegistry()
	service := services.NewBotService(services.Dependencies{
		Automator: rod.NewRodAutomator(rodConfigFrom(cfg), logger),
		Speech: deepgram.NewProvider(deepgram.Config{
			APIKey:            cfg.Deepgram.APIKey,
			URL:               cfg.Deepgram.URL,
			Model:             cfg.Deepgram.Model,
			Language:          cfg.Deepgram.Language,
			SampleRate:        cfg.Deepgram.SampleRate,
			Channels:          cfg.Deepgram.Channels,
			KeepAliveInterval: cfg.Deepgram.KeepAliveInterval,
		}, logger),
		Completer: groq.NewCompleter(groq.Config{
			APIKey:         cfg.LLM.APIKey,
			BaseURL:        cfg.LLM.BaseURL,
			Model:          cfg.LLM.Model,
			RequestTimeout: cfg.LLM.RequestTimeout,
		}, logger),
		Broadcaster: broadcaster,
		Records:     records.NewClient(cfg.Records.BaseURL, cfg.Records.Timeout, logger),
		Registry:    registry,
		Logger:      logger,
		Metrics:     metrics,
	}, settingsFrom(cfg))

	reaper, err := services.NewReaper(registry, cfg.FailedRetention, cfg.ReapSchedule, logger)
	if err != nil {
		return err
	}
	reaper.Start()
	defer reaper.Stop()

	router := primaryHTTP.NewRouter(primaryHTTP.NewHandler(service, logger), primaryHTTP.RouterConfig{
		AllowedOrigins: cfg.CORSOrigins,
		Gatherer:       prometheus.DefaultGatherer,
	}, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Control API listening", logging.F("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("control API: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown", logging.Err(err))
	}
	service.LeaveAll(shutdownCtx)
	logger.Info("Meeting copilot stopped")
	return nil
}
