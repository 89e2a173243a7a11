package etl

import (
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/etl-dispatch/internal/config"
)

// ItemsExtractLimit caps how many catalog rows the items extractor reads
const ItemsExtractLimit = 1000

// New selects the pipeline implementation described by cfg. db may be nil
// when neither the items extractor nor the sql loader is selected.
func New(cfg config.ETLConfig, db *sqlx.DB, logger *slog.Logger) (Pipeline, error) {
	if cfg.Mode == "noop" {
		return NoopPipeline{DefaultJobName: cfg.JobName}, nil
	}
	if cfg.Mode != "" && cfg.Mode != "processor" {
		return nil, fmt.Errorf("unsupported etl mode: %q", cfg.Mode)
	}

	var extractor Extractor
	switch cfg.Extractor {
	case "", "fixture":
		extractor = &FixtureExtractor{}
	case "items":
		if db == nil {
			return nil, fmt.Errorf("etl extractor items requires a database")
		}
		extractor = NewItemsExtractor(db, ItemsExtractLimit)
	default:
		return nil, fmt.Errorf("unsupported etl extractor: %q", cfg.Extractor)
	}

	var loader Loader
	switch cfg.Loader {
	case "", "log":
		loader = NewLogLoader(logger, 0)
	case "sql":
		if db == nil {
			return nil, fmt.Errorf("etl loader sql requires a database")
		}
		loader = NewSQLLoader(db)
	default:
		return nil, fmt.Errorf("unsupported etl loader: %q", cfg.Loader)
	}

	return NewProcessor(Options{
		Extractor:        extractor,
		Loader:           loader,
		ConversionFactor: cfg.ConversionFactor,
		DefaultJobName:   cfg.JobName,
		ProcessingDate:   cfg.ProcessingDate,
		Logger:           logger,
	}), nil
}
