package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/bannerbuildr/internal/aiconnectors"
	"github.com/bannerbuildr/internal/archive"
	"github.com/bannerbuildr/internal/assets"
	"github.com/bannerbuildr/internal/batch"
	"github.com/bannerbuildr/internal/binder"
	"github.com/bannerbuildr/internal/bundle"
	"github.com/bannerbuildr/internal/config"
	"github.com/bannerbuildr/internal/logging"
	"github.com/bannerbuildr/internal/mapping"
	"github.com/bannerbuildr/internal/preview"
	"github.com/bannerbuildr/internal/records"
	"github.com/bannerbuildr/internal/retry"
	"github.com/bannerbuildr/internal/session"
	"github.com/bannerbuildr/pkg/models"
)

// Components is the wired application.
type Components struct {
	Config   *config.Config
	Handles  *assets.HandleStore
	Renderer *preview.Renderer
	Store    *session.Store
	Binder   *binder.Binder
	Mapper   *mapping.Mapper
	Records  *records.Cache
	Packager *archive.Packager

	BundleOptions []bundle.Option
}

// loadConfig loads and validates the configuration named by the global
// --config flag and configures logging from it.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if c.Bool("verbose") {
		cfg.Log.Level = "debug"
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := logging.Setup(cfg.Log.Level, cfg.Log.Format, os.Stderr); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewComponents wires every collaborator from cfg.
func NewComponents(ctx context.Context, cfg *config.Config) (*Components, error) {
	strategy, err := assets.ParseStrategy(cfg.Preview.Strategy)
	if err != nil {
		return nil, err
	}

	handles := assets.NewHandleStore(cfg.Preview.HandlePrefix)
	resolver := assets.NewResolver(assets.Config{
		Strategy:      strategy,
		ServedPrefix:  cfg.Preview.ServedPrefix,
		AssetBasePath: cfg.Preview.AssetBasePath,
		MaxParallel:   cfg.Preview.MaxParallel,
	})
	renderer := preview.NewRenderer(resolver, handles)

	router := &records.Router{
		Sheets: records.NewSheetSource(records.SheetSourceConfig{
			ExportURL:         cfg.Sheets.ExportURL,
			RequestsPerSecond: cfg.Sheets.RequestsPerSecond,
			Timeout:           cfg.Sheets.Timeout(),
		}, nil),
		Workbooks: &records.WorkbookSource{Root: cfg.Sheets.DataDir},
		CSVFiles:  &records.CSVFileSource{Root: cfg.Sheets.DataDir},
	}

	var fetcher archive.ArchiveFetcher
	if cfg.Archive.FetchBaseURL != "" {
		fetchRetry := retry.FetchRetryConfig()
		fetchRetry.MaxRetries = cfg.Archive.MaxRetries
		fetcher = archive.NewHTTPFetcher(cfg.Archive.FetchBaseURL, nil, fetchRetry)
	}
	batchCfg := batch.DefaultConfig()
	batchCfg.MaxWorkers = cfg.Archive.MaxWorkers

	comp := &Components{
		Config:   cfg,
		Handles:  handles,
		Renderer: renderer,
		Store:    session.NewStore(renderer),
		Binder: binder.New(binder.Options{
			BaseFolderPath: cfg.Template.BaseFolderPath,
			DefaultDimensions: models.Dimensions{
				Width:  cfg.Template.DefaultWidth,
				Height: cfg.Template.DefaultHeight,
			},
		}),
		Records:  records.NewCache(router),
		Packager: archive.NewPackager(fetcher, batchCfg),
		BundleOptions: []bundle.Option{
			bundle.WithEntryName(cfg.Template.EntryName),
			bundle.WithConfigName(cfg.Template.ConfigScript),
		},
	}

	if cfg.AI.Enabled() {
		inferrer, err := newInferrer(ctx, cfg.AI)
		if err != nil {
			return nil, err
		}
		comp.Mapper = mapping.NewMapper(inferrer)
	} else {
		log.Warn().Msg("No AI provider configured; field mapping must be supplied explicitly")
	}
	return comp, nil
}

func newConnector(ctx context.Context, ai config.AIConfig) (*aiconnectors.Connector, error) {
	provider, err := aiconnectors.ParseProvider(ai.Provider)
	if err != nil {
		return nil, err
	}
	return aiconnectors.NewConnector(ctx, aiconnectors.ConnectorOptions{
		Provider: provider,
		APIKey:   ai.APIKey,
		BaseURL:  ai.BaseURL,
		ModelConfig: aiconnectors.ModelConfig{
			Model:       ai.Model,
			Temperature: ai.Temperature,
			MaxTokens:   ai.MaxTokens,
		},
	})
}

func newInferrer(ctx context.Context, ai config.AIConfig) (*aiconnectors.Inferrer, error) {
	connector, err := newConnector(ctx, ai)
	if err != nil {
		return nil, err
	}
	retryCfg := retry.LLMRetryConfig()
	retryCfg.MaxRetries = ai.MaxRetries
	log.Info().Str("provider", string(connector.Provider())).Str("model", connector.Model()).Msg("Name inference enabled")
	return aiconnectors.NewConnectorInferrer(connector, ai.Timeout(), retryCfg), nil
}

// readTemplate loads a template archive from disk.
func (comp *Components) readTemplate(path string) (*bundle.Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template: %w", err)
	}
	b, err := bundle.FromZip(data, comp.BundleOptions...)
	if err != nil {
		return nil, err
	}
	if !b.HasEntry() {
		log.Warn().Str("template", path).Msg("Template has no entry document")
	}
	return b, nil
}
