package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/subcommands"
	"github.com/rs/zerolog"

	"github.com/aristath/allocator/internal/config"
	"github.com/aristath/allocator/internal/di"
	"github.com/aristath/allocator/internal/modules/analytics"
	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/aristath/allocator/internal/utils"
	"github.com/aristath/allocator/pkg/logger"
)

var commands = []subcommands.Command{
	&strategiesCmd{stdout: os.Stdout},
	&importCmd{stdout: os.Stdout},
	&runCmd{stdout: os.Stdout},
}

// wire loads configuration and builds the dependency container. Logs go to stderr.
func wire(ctx context.Context, readOnly bool) (*config.Config, *di.Container, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, zerolog.Nop(), err
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: true})

	container, err := di.Wire(ctx, cfg, readOnly, log)
	if err != nil {
		return nil, nil, log, err
	}
	return cfg, container, log, nil
}

type strategiesCmd struct {
	stdout io.Writer
}

func (*strategiesCmd) Name() string     { return "strategies" }
func (*strategiesCmd) Synopsis() string { return "list the available optimization strategies" }
func (*strategiesCmd) Usage() string {
	return `strategies

  Prints one strategy name per line.
`
}
func (*strategiesCmd) SetFlags(*flag.FlagSet) {}

func (c *strategiesCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	for _, s := range optimization.AllStrategies {
		fmt.Fprintln(c.stdout, s.String())
	}
	return subcommands.ExitSuccess
}

type importCmd struct {
	stdout     io.Writer
	securities string
	prices     string
}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "load securities and daily closes from CSV into the snapshot" }
func (*importCmd) Usage() string {
	return `import [-securities <file>] [-prices <file>]

  Securities CSV columns: symbol,name,sector,risk_score[,active]
  Prices CSV columns:     symbol,date,close (date as YYYY-MM-DD)

  Securities are imported first; prices for unknown symbols are rejected.
  Abnormal closes (non-positive, spikes, crashes) are dropped and reported.
`
}

func (c *importCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.securities, "securities", "", "Securities CSV file")
	f.StringVar(&c.prices, "prices", "", "Daily prices CSV file")
}

func (c *importCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.securities == "" && c.prices == "" {
		fmt.Fprintln(os.Stderr, "Error: at least one of -securities or -prices is required.")
		return subcommands.ExitUsageError
	}

	_, container, _, err := wire(ctx, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer container.Close()

	if c.securities != "" {
		f, err := os.Open(c.securities)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening securities file: %v\n", err)
			return subcommands.ExitFailure
		}
		n, err := container.Importer.ImportSecurities(ctx, f)
		f.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error importing securities: %v\n", err)
			return subcommands.ExitFailure
		}
		fmt.Fprintf(c.stdout, "Imported %d securities\n", n)
	}

	if c.prices != "" {
		f, err := os.Open(c.prices)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening prices file: %v\n", err)
			return subcommands.ExitFailure
		}
		result, err := container.Importer.ImportPrices(ctx, f)
		f.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error importing prices: %v\n", err)
			return subcommands.ExitFailure
		}
		fmt.Fprintf(c.stdout, "Imported %d closes for %d symbols\n", result.Rows, result.Symbols)
		for _, r := range result.Rejected {
			fmt.Fprintf(c.stdout, "  rejected %s %s %g: %s\n", r.Symbol, r.Date, r.Close, r.Reason)
		}
	}

	return subcommands.ExitSuccess
}

type runCmd struct {
	stdout io.Writer

	strategies      string
	format          string
	lookback        int
	minWeight       float64
	maxWeight       float64
	excludeSectors  string
	forceInclude    string
	riskTolerance   float64
	withPerformance bool
	timeout         time.Duration
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "optimize the snapshot universe and print the ranked portfolios" }
func (*runCmd) Usage() string {
	return `run [-strategies <a,b>] [-format csv|json] [-lookback <days>] [-min-weight <w>] [-max-weight <w>]
    [-exclude-sectors <a,b>] [-force-include <t1,t2>] [-risk-tolerance <r>] [-performance] [-timeout <d>]

  Runs the selected strategies (all by default) and writes the report to stdout.
  Strategy failures are listed as warnings; the exit status is non-zero only
  when the run itself fails.
`
}

func (c *runCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.strategies, "strategies", "", "Comma-separated strategy names (default: all)")
	f.StringVar(&c.format, "format", "csv", "Output format: csv or json")
	f.IntVar(&c.lookback, "lookback", -1, "Days of history to load (default: LOOKBACK_DAYS)")
	f.Float64Var(&c.minWeight, "min-weight", 0, "Lower bound for every weight")
	f.Float64Var(&c.maxWeight, "max-weight", 0, "Upper bound for every weight (default: DEFAULT_MAX_WEIGHT)")
	f.StringVar(&c.excludeSectors, "exclude-sectors", "", "Comma-separated sectors to exclude")
	f.StringVar(&c.forceInclude, "force-include", "", "Comma-separated tickers kept regardless of filters")
	f.Float64Var(&c.riskTolerance, "risk-tolerance", 0, "Drop securities whose risk score exceeds this value (0 disables)")
	f.BoolVar(&c.withPerformance, "performance", false, "Include realized performance (json only)")
	f.DurationVar(&c.timeout, "timeout", 0, "Abort the run after this duration, keeping finished strategies")
}

// request builds the run request from flags
func (c *runCmd) request() (optimization.RunRequest, error) {
	req := optimization.RunRequest{
		Preferences: optimization.Preferences{
			ExcludedSectors: utils.ParseList(c.excludeSectors),
			ForceInclude:    utils.ParseList(c.forceInclude),
			MinWeight:       c.minWeight,
			MaxWeight:       c.maxWeight,
			RiskTolerance:   c.riskTolerance,
		},
	}
	for _, name := range utils.ParseList(c.strategies) {
		s, err := optimization.ParseStrategy(name)
		if err != nil {
			return req, err
		}
		req.Strategies = append(req.Strategies, s)
	}
	return req, nil
}

func (c *runCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	format := strings.ToLower(c.format)
	if format != "csv" && format != "json" {
		fmt.Fprintf(os.Stderr, "Error: unknown format %q\n", c.format)
		return subcommands.ExitUsageError
	}
	req, err := c.request()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}

	cfg, container, log, err := wire(ctx, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer container.Close()

	lookback := cfg.LookbackDays
	if c.lookback >= 0 {
		lookback = c.lookback
	}
	assets, err := container.HistoryDB.LoadUniverse(ctx, lookback)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading universe: %v\n", err)
		return subcommands.ExitFailure
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	report, err := container.OptimizerService.Run(ctx, assets, req)
	if err != nil && (report == nil || !errors.Is(err, ctx.Err())) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	if err != nil {
		log.Warn().Err(err).Msg("Run interrupted, writing partial report")
	}

	if err := c.write(report, container.Analyzer); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing report: %v\n", err)
		return subcommands.ExitFailure
	}
	for _, f := range report.Failures {
		fmt.Fprintf(os.Stderr, "Warning: %s failed (%s): %s\n", f.Strategy, f.Kind, f.Message)
	}
	return subcommands.ExitSuccess
}

func (c *runCmd) write(report *optimization.Report, analyzer *analytics.Analyzer) error {
	if strings.ToLower(c.format) == "csv" {
		return optimization.WriteCSV(c.stdout, report)
	}

	out := map[string]interface{}{"report": report}
	if c.withPerformance {
		perfs, err := analyzer.EvaluateReport(report, nil)
		if err != nil {
			return err
		}
		out["performance"] = perfs
	}
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
