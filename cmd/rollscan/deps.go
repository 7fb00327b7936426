package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/rollscan/rollscan/internal/config"
	"github.com/rollscan/rollscan/internal/extract"
	"github.com/rollscan/rollscan/internal/home"
	"github.com/rollscan/rollscan/internal/orchestrator"
	"github.com/rollscan/rollscan/internal/store"
	"github.com/rollscan/rollscan/internal/types"
)

// openHome resolves the home directory and makes sure it exists.
func openHome() (*home.Dir, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, err
	}
	if err := h.EnsureExists(); err != nil {
		return nil, err
	}
	return h, nil
}

// openStore opens the sqlite database inside the home directory.
func openStore(h *home.Dir) (*store.SQLite, error) {
	return store.NewSQLite(h.DatabasePath())
}

// buildExtractor constructs the configured extraction provider.
func buildExtractor(cfg *config.Config, logger *slog.Logger) (extract.Extractor, error) {
	switch cfg.Extraction.Provider {
	case "", extract.GeminiName:
		key := cfg.ResolvedAPIKey()
		if key == "" {
			return nil, fmt.Errorf("no API key configured for %s (set extraction.api_key or GEMINI_API_KEY)", extract.GeminiName)
		}
		return extract.NewGeminiClient(extract.GeminiConfig{
			APIKey:        key,
			Model:         cfg.Extraction.Model,
			RPM:           cfg.Extraction.RateLimit,
			UploadTimeout: time.Duration(cfg.Extraction.UploadTimeoutSeconds) * time.Second,
			Logger:        logger,
		}), nil
	case extract.MockName:
		return extract.NewMock(), nil
	default:
		return nil, fmt.Errorf("unknown extraction provider %q", cfg.Extraction.Provider)
	}
}

// orchestratorConfig maps file configuration onto orchestrator tuning.
func orchestratorConfig(cfg *config.Config) orchestrator.Config {
	return orchestrator.Config{
		Workers:           cfg.Orchestrator.Workers,
		HeartbeatInterval: time.Duration(cfg.Orchestrator.HeartbeatSeconds) * time.Second,
		StaleAfter:        time.Duration(cfg.Orchestrator.StaleAfterSeconds) * time.Second,
		DefaultRun: types.RunConfig{
			MaxPagesPerCall: cfg.Extraction.MaxPagesPerCall,
			MaxRetries:      cfg.Extraction.MaxRetries,
			CallTimeout:     time.Duration(cfg.Extraction.CallTimeoutSeconds) * time.Second,
			PromptVersion:   cfg.Extraction.PromptVersion,
		},
	}
}
