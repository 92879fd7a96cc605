package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vathakkar/ai-voice-concierge/internal/callflow"
	"github.com/vathakkar/ai-voice-concierge/internal/dotenv"
	"github.com/vathakkar/ai-voice-concierge/internal/events"
	"github.com/vathakkar/ai-voice-concierge/internal/exceptions"
	"github.com/vathakkar/ai-voice-concierge/internal/prompts"
	"github.com/vathakkar/ai-voice-concierge/internal/screener"
	"github.com/vathakkar/ai-voice-concierge/internal/store"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := dotenv.LoadFile(".env"); err != nil {
		slog.Warn("dotenv load", "error", err)
	}
	cfg := loadConfig()

	st, err := store.Open(cfg.databaseURL)
	if err != nil {
		slog.Error("store open failed", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	probeCtx, probeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err = st.Ping(probeCtx); err != nil {
		slog.Error("database connectivity check failed", "error", err)
	} else {
		slog.Info("database connectivity check succeeded")
	}
	probeCancel()

	registry := exceptions.NewRegistry(st)
	processor := screener.NewProcessor(buildEngine(cfg), screener.Config{
		SystemPrompt: prompts.System(cfg.ownerName),
		Timeout:      cfg.engineTimeout,
		ApologyText:  prompts.Apology(cfg.ownerName),
		TransferText: prompts.DefaultTransferLine,
		EndText:      prompts.DefaultEndLine,
	})
	hub := events.NewHub()

	if cfg.transferNumber == "" {
		slog.Warn("no transfer number configured; urgent calls will be asked to text instead")
	}

	flow := callflow.New(callflow.Config{
		OwnerName:          cfg.ownerName,
		Voice:              cfg.voice,
		TransferNumber:     cfg.transferNumber,
		SpeechURL:          cfg.publicBaseURL + "/twilio/speech",
		DialStatusURL:      cfg.publicBaseURL + "/twilio/transfer-status",
		RetryLimit:         cfg.retryLimit,
		GatherTimeoutSec:   cfg.gatherTimeoutSec,
		RepromptTimeoutSec: cfg.repromptTimeout,
		DialTimeoutSec:     cfg.dialTimeoutSec,
		Location:           cfg.location(),
	}, st, registry, processor, hub)

	mux := http.NewServeMux()
	registerRoutes(mux, deps{
		flow:     flow,
		registry: registry,
		store:    st,
		events:   hub,
	})

	addr := ":" + cfg.port
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	slog.Info("concierge starting", "addr", addr, "owner", cfg.ownerName)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}

	slog.Info("concierge stopped")
}

// buildEngine selects the generative backend from config. Azure wins when an
// endpoint is set; with no credentials at all the screener runs in
// fallback-only mode.
func buildEngine(cfg config) screener.Engine {
	switch {
	case cfg.azureEndpoint != "" && cfg.azureAPIKey != "" && cfg.azureDeployment != "":
		slog.Info("using azure openai engine", "deployment", cfg.azureDeployment)
		return screener.NewAzureEngine(cfg.azureEndpoint, cfg.azureAPIVersion, cfg.azureAPIKey,
			cfg.azureDeployment, int64(cfg.engineMaxTokens), cfg.engineTemperature)
	case cfg.openaiAPIKey != "":
		slog.Info("using openai engine", "model", cfg.openaiModel)
		return screener.NewOpenAIEngine(cfg.openaiAPIKey, cfg.openaiModel,
			int64(cfg.engineMaxTokens), cfg.engineTemperature)
	default:
		slog.Warn("no generative engine configured; every screening turn will use the fallback response")
		return nil
	}
}
