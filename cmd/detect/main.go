package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dvloznov/ledger-anomaly/internal/config"
	"github.com/dvloznov/ledger-anomaly/internal/logger"
	"github.com/dvloznov/ledger-anomaly/internal/pipeline"
	"github.com/dvloznov/ledger-anomaly/internal/report"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runPipeline(log, "run", true, true)
	case "features":
		runPipeline(log, "features", true, false)
	case "score":
		runPipeline(log, "score", false, true)
	case "inspect":
		runInspect(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Ledger anomaly detector")
	fmt.Println("\nUsage:")
	fmt.Println("  detect <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  run       Build account features from the ledger, score them and write the report")
	fmt.Println("  features  Build the account feature table and store it")
	fmt.Println("  score     Score a stored feature table and write the report")
	fmt.Println("  inspect   Print near-threshold activity by day and hour, or one account's features")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'detect <command> -h' for more information on a command.")
}

// commonFlags are shared by every subcommand. Only flags that were set
// override the loaded configuration.
type commonFlags struct {
	fs      *flag.FlagSet
	config  *string
	ledger  *string
	report  *string
	seed    *string
	timeout *time.Duration
}

func newFlagSet(name string) *commonFlags {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	return &commonFlags{
		fs:      fs,
		config:  fs.String("config", "", "Path to a YAML config file (defaults and LEDGER_* env vars otherwise)"),
		ledger:  fs.String("ledger", "", "Ledger CSV path or gs:// URI (overrides ledger.path)"),
		report:  fs.String("report", "", "Report path or gs:// URI (overrides report.path)"),
		seed:    fs.String("seed", "", "Random seed for the forest (overrides scoring.seed)"),
		timeout: fs.Duration("timeout", 0, "Overall command timeout (0 disables)"),
	}
}

func (f *commonFlags) load() (config.Config, error) {
	cfg, err := config.Load(*f.config, *f.config == "")
	if err != nil {
		return cfg, err
	}
	var applyErr error
	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "ledger":
			cfg.Ledger.Path = *f.ledger
			cfg.Ledger.Source = "csv"
		case "report":
			cfg.Report.Path = *f.report
		case "seed":
			seed, err := strconv.ParseInt(*f.seed, 10, 64)
			if err != nil {
				applyErr = fmt.Errorf("invalid -seed: %w", err)
				return
			}
			cfg.Scoring.Seed = seed
		}
	})
	return cfg, applyErr
}

func (f *commonFlags) context(log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cancel := context.CancelFunc(func() {})
	if *f.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, *f.timeout)
	}
	ctx = logger.WithContext(ctx, log)
	return ctx, func() {
		cancel()
		stop()
	}
}

func configuredLogger(cfg config.Config) zerolog.Logger {
	return logger.NewWithOptions(os.Stderr, logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
}

func runPipeline(log zerolog.Logger, name string, withLedger, withScoring bool) {
	flags := newFlagSet(name)
	flags.fs.Parse(os.Args[2:])

	cfg, err := flags.load()
	if err != nil {
		log.Fatal().Err(err).Msg("Loading configuration failed")
	}
	log = configuredLogger(cfg)

	runID := uuid.NewString()
	ctx, cancel := flags.context(log)
	defer cancel()
	ctx = logger.WithRun(ctx, runID)
	log = logger.FromContext(ctx)

	res := newResources(cfg)
	defer res.Close(log)

	deps, err := res.deps(ctx, withLedger, withScoring)
	if err != nil {
		log.Fatal().Err(err).Msg("Initializing pipeline failed")
	}

	var p *pipeline.Pipeline
	switch name {
	case "run":
		p = pipeline.NewRunPipeline(deps)
	case "features":
		p = pipeline.NewFeaturesPipeline(deps)
	case "score":
		p = pipeline.NewScorePipeline(deps)
	}

	log.Info().
		Str("command", name).
		Str("ledger_source", cfg.Ledger.Source).
		Str("feature_store", deps.Store.Location()).
		Msg("Starting pipeline")

	state := &pipeline.PipelineState{RunID: runID}
	if err := p.Execute(ctx, state); err != nil {
		res.Close(log)
		log.Fatal().Err(err).Msg("Pipeline failed")
	}

	switch {
	case state.Result != nil:
		fmt.Printf("Scored %d accounts, flagged %d. Report: %s\n", len(state.Result.Rows), state.Result.Flagged, cfg.Report.Path)
	case state.Features != nil:
		fmt.Printf("Built features for %d accounts (%d with insufficient history). Stored at %s\n",
			state.Features.Len(), len(state.Warnings), deps.Store.Location())
	}
}

func runInspect(log zerolog.Logger) {
	flags := newFlagSet("inspect")
	account := flags.fs.String("account", "", "Print the stored feature row of this account instead of activity")
	flags.fs.Parse(os.Args[2:])

	cfg, err := flags.load()
	if err != nil {
		log.Fatal().Err(err).Msg("Loading configuration failed")
	}
	log = configuredLogger(cfg)

	ctx, cancel := flags.context(log)
	defer cancel()

	res := newResources(cfg)
	defer res.Close(log)

	if *account != "" {
		inspectAccount(ctx, log, res, *account)
		return
	}

	deps, err := res.deps(ctx, true, false)
	if err != nil {
		log.Fatal().Err(err).Msg("Initializing ledger reader failed")
	}
	state := &pipeline.PipelineState{}
	if err := (&pipeline.LoadLedgerStep{Reader: deps.Reader}).Execute(ctx, state); err != nil {
		res.Close(log)
		log.Fatal().Err(err).Msg("Loading ledger failed")
	}

	activity := report.NearThresholdActivity(state.Transactions, deps.Builder.NearThreshold)
	fmt.Printf("Near-threshold transactions [%s, %s] by day and hour\n\n", deps.Builder.NearMin, deps.Builder.NearMax)
	if err := activity.Write(os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("Writing activity table failed")
	}
}

func inspectAccount(ctx context.Context, log zerolog.Logger, res *resources, account string) {
	store, err := res.featureStore(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Initializing feature store failed")
	}
	table, err := store.Load(ctx)
	if err != nil {
		res.Close(log)
		log.Fatal().Err(err).Msg("Loading feature table failed")
	}

	row, ok := table.Lookup(account)
	if !ok {
		fmt.Printf("Account %s not found in feature table (%d accounts)\n", account, table.Len())
		return
	}

	fmt.Printf("Account:         %s\n", row.Account)
	fmt.Printf("Transactions:    %d\n", row.NTx)
	fmt.Printf("Amount sum:      %.2f\n", row.AmtSum)
	fmt.Printf("Amount mean:     %.2f\n", row.AmtMean)
	fmt.Printf("Amount max:      %.2f\n", row.AmtMax)
	fmt.Printf("Near threshold:  %d (%.1f%%)\n", row.NearN, 100*row.NearPct)
	fmt.Printf("Fraud / flagged: %d / %d\n", row.FraudN, row.FlaggedN)
	if row.InsufficientHistory() {
		fmt.Println("Inter-arrival:   insufficient history")
	} else {
		fmt.Printf("Inter-arrival:   mean %.2f, median %.2f, std %.2f steps\n",
			row.IAMean.Float64, row.IAMedian.Float64, row.IAStd.Float64)
	}
	fmt.Printf("Counterparties:  %d\n", row.CPDiversity)
	fmt.Printf("Round trip:      %v\n", row.RoundTripAny)
}
