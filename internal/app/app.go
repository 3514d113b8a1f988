// Package app wires configuration, storage, the source clients, the
// summarization pipeline, and the sync engine into one long-lived object
// that cmd/daybookd drives from its subcommand dispatch.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"daybook/internal/config"
	"daybook/internal/crypto"
	"daybook/internal/digest"
	"daybook/internal/observability"
	"daybook/internal/pipeline"
	atlassianapi "daybook/internal/sourceclient/atlassian"
	slackapi "daybook/internal/sourceclient/slack"
	"daybook/internal/store"
	"daybook/internal/sync"
	"daybook/internal/taskboard"
)

// App is the assembled daemon: every package wired together around one
// store, ready to run sync cycles and answer digest/credential/preference
// queries. Fields are exported selectively through methods rather than
// directly, so cmd/daybookd only ever goes through the app's own API.
type App struct {
	Config config.Config

	store    *store.Store
	vault    *crypto.Vault
	board    *taskboard.Board
	queue    *sync.Queue
	lastSync preferenceLastSync

	slackClient     *slackapi.Client
	atlassianClient *atlassianapi.Client
	slackWorker     *sync.SlackWorker
	atlassianWorker *sync.AtlassianWorker

	engine    *sync.Engine
	digestR   *digest.Reader
	breakdown *digest.Generator

	otelShutdown func(context.Context) error
}

// New loads configuration, opens the credential vault and the store, and
// assembles every package that depends on them. The LLM client is optional:
// if no Gemini credential has been saved yet (and no bootstrap environment
// variable supplies one), summarization and the weekly breakdown are
// disabled until save_gemini_credentials or save_api_key is called.
func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("app: loading config: %w", err)
	}
	observability.InitLogger(cfg.LogPath, cfg.LogLevel)

	vault, err := crypto.New()
	if err != nil {
		return nil, fmt.Errorf("app: opening credential vault: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("app: creating data directory %s: %w", cfg.DataDir, err)
	}
	st, err := store.Open(ctx, cfg.DataDir, cfg.DBFile)
	if err != nil {
		return nil, fmt.Errorf("app: opening store: %w", err)
	}

	var otelShutdown func(context.Context) error
	if cfg.Obs.Enabled {
		shutdown, err := observability.InitOTel(ctx, cfg.Obs)
		if err != nil {
			log.Warn().Err(err).Msg("app: opentelemetry init failed, continuing without it")
		} else {
			otelShutdown = shutdown
		}
	}

	slackClient := slackapi.New(cfg.Slack.ClientID, cfg.Slack.ClientSecret)
	atlassianClient := atlassianapi.New(cfg.Atlassian.ClientID, cfg.Atlassian.ClientSecret)
	slackWorker := sync.NewSlackWorker(slackClient, st, vault)
	atlassianWorker := sync.NewAtlassianWorker(atlassianClient, st, vault)

	llm, err := loadLLMClient(ctx, cfg, st, vault)
	if err != nil {
		log.Warn().Err(err).Msg("app: no usable LLM credentials found, summarization is disabled until one is configured")
	}

	var pl *pipeline.Pipeline
	var breakdown *digest.Generator
	if llm != nil {
		pl = pipeline.New(llm, st, vault)
		breakdown = digest.NewGenerator(st, llm)
	}

	board := taskboard.New()
	queue := sync.NewQueueWithMaxRetries(cfg.Scheduler.MaxQueueRetries)
	lastSync := preferenceLastSync{store: st}
	interval := time.Duration(cfg.Scheduler.IntervalMinutes) * time.Minute
	engine := sync.NewEngine(slackWorker, atlassianWorker, pl, board, queue, lastSync, interval)

	return &App{
		Config:          cfg,
		store:           st,
		vault:           vault,
		board:           board,
		queue:           queue,
		lastSync:        lastSync,
		slackClient:     slackClient,
		atlassianClient: atlassianClient,
		slackWorker:     slackWorker,
		atlassianWorker: atlassianWorker,
		engine:          engine,
		digestR:         digest.NewReader(st),
		breakdown:       breakdown,
		otelShutdown:    otelShutdown,
	}, nil
}

// StartBackgroundSync launches the periodic sync loop. Daemon mode calls
// this once and blocks; one-shot CLI invocations never do.
func (a *App) StartBackgroundSync(ctx context.Context) { a.engine.Start(ctx) }

// Close stops the background loop if running, flushes telemetry, and closes
// the store. Safe to call even if StartBackgroundSync was never called.
func (a *App) Close(ctx context.Context) error {
	a.engine.Stop()
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("app: opentelemetry shutdown failed")
		}
	}
	return a.store.Close()
}

// reloadPipeline rebuilds the pipeline and weekly-breakdown generator from
// whatever LLM credential is currently stored, called after a credential is
// saved or deleted so summarization picks up the change without a restart.
func (a *App) reloadPipeline(ctx context.Context) error {
	llm, err := loadLLMClient(ctx, a.Config, a.store, a.vault)
	if err != nil {
		return err
	}
	if llm == nil {
		a.engine.SetPipeline(nil)
		a.breakdown = nil
		return nil
	}
	a.engine.SetPipeline(pipeline.New(llm, a.store, a.vault))
	a.breakdown = digest.NewGenerator(a.store, llm)
	return nil
}
