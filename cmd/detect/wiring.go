package main

import (
	"context"
	"fmt"

	"github.com/dvloznov/ledger-anomaly/internal/anomaly"
	"github.com/dvloznov/ledger-anomaly/internal/config"
	"github.com/dvloznov/ledger-anomaly/internal/features"
	"github.com/dvloznov/ledger-anomaly/internal/featurestore"
	"github.com/dvloznov/ledger-anomaly/internal/gcs"
	infraBQ "github.com/dvloznov/ledger-anomaly/internal/infra/bigquery"
	"github.com/dvloznov/ledger-anomaly/internal/infra/postgres"
	"github.com/dvloznov/ledger-anomaly/internal/ledger"
	"github.com/dvloznov/ledger-anomaly/internal/pipeline"
	"github.com/dvloznov/ledger-anomaly/internal/report"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// resources owns the clients opened for one command and closes them in
// reverse order.
type resources struct {
	cfg     config.Config
	gcs     *gcs.Client
	bq      *infraBQ.Repository
	closers []func() error
}

func newResources(cfg config.Config) *resources {
	return &resources{cfg: cfg}
}

func (r *resources) Close(log zerolog.Logger) {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			log.Warn().Err(err).Msg("Closing client")
		}
	}
}

func (r *resources) objects(ctx context.Context) (*gcs.Client, error) {
	if r.gcs != nil {
		return r.gcs, nil
	}
	c, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	r.gcs = c
	r.closers = append(r.closers, c.Close)
	return c, nil
}

func (r *resources) bigQuery(ctx context.Context) (*infraBQ.Repository, error) {
	if r.bq != nil {
		return r.bq, nil
	}
	repo, err := infraBQ.NewRepository(ctx, infraBQ.Dataset{
		ProjectID: r.cfg.BigQuery.ProjectID,
		DatasetID: r.cfg.BigQuery.DatasetID,
	})
	if err != nil {
		return nil, err
	}
	r.bq = repo
	r.closers = append(r.closers, repo.Close)
	return repo, nil
}

func (r *resources) ledgerReader(ctx context.Context) (ledger.Reader, error) {
	lc := r.cfg.Ledger
	switch lc.Source {
	case "bigquery":
		repo, err := r.bigQuery(ctx)
		if err != nil {
			return nil, err
		}
		return repo.LedgerReader(lc.Table), nil
	case "postgres":
		db, err := postgres.Open(ctx, lc.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, db.Close)
		return postgres.NewLedgerReader(db, lc.Table, lc.Postgres.QueryTimeout), nil
	}

	if gcs.IsURI(lc.Path) {
		c, err := r.objects(ctx)
		if err != nil {
			return nil, err
		}
		return &ledger.ObjectReader{URI: lc.Path, Fetcher: c}, nil
	}
	return &ledger.FileReader{Path: lc.Path}, nil
}

func (r *resources) featureStore(ctx context.Context) (featurestore.Store, error) {
	sc := r.cfg.Features.Store
	if sc.Backend == "redis" {
		s := featurestore.NewRedisStore(&redis.Options{
			Addr:     sc.Redis.Addr,
			Password: sc.Redis.Password,
			DB:       sc.Redis.DB,
		}, sc.Redis.Key, sc.Redis.TTL)
		r.closers = append(r.closers, s.Close)
		return s, nil
	}

	if gcs.IsURI(sc.Path) {
		c, err := r.objects(ctx)
		if err != nil {
			return nil, err
		}
		return featurestore.NewFileStore(sc.Path, c), nil
	}
	return featurestore.NewFileStore(sc.Path, nil), nil
}

func (r *resources) builder() (*features.Builder, error) {
	fc := r.cfg.Features
	lo, err := decimal.NewFromString(fc.NearThresholdMin)
	if err != nil {
		return nil, fmt.Errorf("features.near_threshold_min: %w", err)
	}
	hi, err := decimal.NewFromString(fc.NearThresholdMax)
	if err != nil {
		return nil, fmt.Errorf("features.near_threshold_max: %w", err)
	}
	return &features.Builder{
		CustomerPrefix: fc.CustomerPrefix,
		NearMin:        lo,
		NearMax:        hi,
		Workers:        fc.Workers,
	}, nil
}

func (r *resources) scorer() (*anomaly.Scorer, error) {
	sc := r.cfg.Scoring
	return anomaly.NewScorer(anomaly.Config{
		Columns:       sc.Columns,
		Contamination: sc.Contamination,
		Trees:         sc.Trees,
		MaxSamples:    sc.MaxSamples,
		Seed:          sc.Seed,
		Workers:       sc.Workers,
	})
}

// deps assembles the stage implementations. Ledger and scoring parts are only
// built when the command needs them.
func (r *resources) deps(ctx context.Context, withLedger, withScoring bool) (pipeline.Deps, error) {
	var d pipeline.Deps
	var err error

	if d.Store, err = r.featureStore(ctx); err != nil {
		return d, err
	}

	if withLedger {
		if d.Reader, err = r.ledgerReader(ctx); err != nil {
			return d, err
		}
		if d.Builder, err = r.builder(); err != nil {
			return d, err
		}
	}

	if withScoring {
		if d.Scorer, err = r.scorer(); err != nil {
			return d, err
		}
		emitter := &report.Emitter{Path: r.cfg.Report.Path, Top: 10}
		if gcs.IsURI(emitter.Path) {
			if emitter.Objects, err = r.objects(ctx); err != nil {
				return d, err
			}
		}
		if r.cfg.Report.BigQuery {
			repo, err := r.bigQuery(ctx)
			if err != nil {
				return d, err
			}
			emitter.Sinks = append(emitter.Sinks, repo)
			d.Tracker = repo
			d.Params = infraBQ.RunParams{
				Contamination: r.cfg.Scoring.Contamination,
				Trees:         r.cfg.Scoring.Trees,
				Seed:          r.cfg.Scoring.Seed,
			}
		}
		d.Emitter = emitter
	}
	return d, nil
}
