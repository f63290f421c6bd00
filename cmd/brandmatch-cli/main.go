package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v2"

	"yashubustudio/brandmatch/brandmatch"
	"yashubustudio/brandmatch/internal/httpapi"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatalf("brandmatch-cli: %v", err)
	}
}

func newApp() *cli.App {
	thresholdFlag := func() cli.Flag {
		return &cli.Float64Flag{
			Name:    "threshold",
			Aliases: []string{"t"},
			Usage:   "Minimum similarity (0-100); defaults to the configured threshold",
		}
	}
	return &cli.App{
		Name:                   "brandmatch-cli",
		Usage:                  "Find registered brands that look or sound like a proposed name",
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config.json (default: ./config.json)",
			},
			&cli.StringFlag{
				Name:  "corpus",
				Usage: "Brand list (CSV, TSV, TXT or XLSX); overrides the configured path",
			},
			&cli.StringSliceFlag{
				Name:  "strategy",
				Usage: "Restrict to the named strategies (repeatable)",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "Suppress progress logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "search",
				Aliases:   []string{"s"},
				Usage:     "Match a single name against the brand list",
				ArgsUsage: "<name>",
				Flags: []cli.Flag{
					thresholdFlag(),
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Maximum rows in the combined list (0 = all)"},
					&cli.BoolFlag{Name: "json", Aliases: []string{"j"}, Usage: "Output as JSON"},
					&cli.StringFlag{Name: "only", Usage: "Run just this strategy and print its raw scores"},
				},
				Action: searchCommand,
			},
			{
				Name:  "batch",
				Usage: "Match every name of an input file and write the results",
				Flags: []cli.Flag{
					thresholdFlag(),
					&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "CSV/TSV/TXT/XLSX file with one name per row", Required: true},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Result file (.csv or .xlsx); default uses --output-dir/result_*.csv"},
					&cli.StringFlag{Name: "output-dir", Usage: "Directory for result files when --output is omitted", Value: "csv"},
					&cli.BoolFlag{Name: "stdout", Usage: "Print a summary of the results"},
				},
				Action: batchCommand,
			},
			{
				Name:  "serve",
				Usage: "Serve the JSON HTTP API",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "addr", Usage: "Listen address", Value: ":8080", EnvVars: []string{"BRANDMATCH_ADDR"}},
				},
				Action: serveCommand,
			},
			{
				Name:   "strategies",
				Usage:  "List the configured strategies",
				Action: strategiesCommand,
			},
		},
	}
}

func newLogger(c *cli.Context) *log.Logger {
	if c.Bool("quiet") {
		return log.New(io.Discard, "", 0)
	}
	return log.New(os.Stderr, "", log.LstdFlags)
}

func loadConfig(c *cli.Context) (brandmatch.Config, error) {
	cfg, err := brandmatch.LoadConfig(strings.TrimSpace(c.String("config")))
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, fmt.Errorf("apply environment: %w", err)
	}
	if path := strings.TrimSpace(c.String("corpus")); path != "" {
		cfg.Corpus.Path = path
	}
	if names := c.StringSlice("strategy"); len(names) > 0 {
		cfg.Strategies = names
	}
	return cfg, nil
}

func openService(ctx context.Context, c *cli.Context, opts ...brandmatch.ServiceOption) (*brandmatch.Service, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	svc, err := brandmatch.NewService(ctx, cfg, newLogger(c), opts...)
	if err != nil {
		return nil, fmt.Errorf("init service: %w", err)
	}
	return svc, nil
}

func thresholdFor(c *cli.Context, svc *brandmatch.Service) float64 {
	if c.IsSet("threshold") {
		return c.Float64("threshold")
	}
	return svc.Config().Threshold
}

func searchCommand(c *cli.Context) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return errors.New("usage: brandmatch-cli search <name>")
	}
	ctx := c.Context
	svc, err := openService(ctx, c)
	if err != nil {
		return err
	}
	defer svc.Close()

	if only := c.String("only"); only != "" {
		scored, err := svc.Search(ctx, only, query)
		if err != nil {
			return fmt.Errorf("search %s: %w", only, err)
		}
		if n := c.Int("limit"); n > 0 && len(scored) > n {
			scored = scored[:n]
		}
		if c.Bool("json") {
			return writeJSON(c.App.Writer, scored)
		}
		for i, s := range scored {
			fmt.Fprintf(c.App.Writer, "%3d. %-40s %6.2f\n", i+1, s.Term, s.Score)
		}
		return nil
	}

	opts := svc.Options(thresholdFor(c, svc))
	opts.FlatLimit = c.Int("limit")
	report := svc.FuseWith(ctx, query, opts)
	if c.Bool("json") {
		return writeJSON(c.App.Writer, report)
	}
	printReport(c.App.Writer, report)
	return nil
}

func batchCommand(c *cli.Context) error {
	ctx := c.Context
	queries, err := brandmatch.ReadFirstColumn(c.String("input"), brandmatch.HeaderAuto, "")
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	if len(queries) == 0 {
		return errors.New("input file does not contain any names")
	}
	svc, err := openService(ctx, c, brandmatch.WithEagerPrepare())
	if err != nil {
		return err
	}
	defer svc.Close()

	start := time.Now()
	reports, err := svc.FuseAll(ctx, queries, svc.Options(thresholdFor(c, svc)))
	if err != nil {
		return fmt.Errorf("match: %w", err)
	}
	outputPath, err := resolveOutputPath(c.String("output"), c.String("output-dir"))
	if err != nil {
		return err
	}
	if err := writeReports(outputPath, reports); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Resultados de %d consultas guardados en %s (%s)\n", len(reports), outputPath, time.Since(start).Round(time.Millisecond))
	if c.Bool("stdout") {
		for _, r := range reports {
			printReport(c.App.Writer, r)
		}
	}
	return nil
}

func serveCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	svc, err := openService(ctx, c, brandmatch.WithEagerPrepare())
	if err != nil {
		return err
	}
	defer svc.Close()
	return httpapi.Serve(ctx, c.String("addr"), svc, newLogger(c))
}

func strategiesCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	strategies, err := brandmatch.BuildStrategies(cfg, nil)
	if err != nil {
		return err
	}
	for _, s := range strategies {
		fmt.Fprintf(c.App.Writer, "%-12s %s\n", s.Name(), s.Family())
	}
	return nil
}

func resolveOutputPath(path, dir string) (string, error) {
	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("resolve output path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			return "", fmt.Errorf("create output directory: %w", err)
		}
		return absPath, nil
	}
	if dir == "" {
		dir = "csv"
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve output dir: %w", err)
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	filename := fmt.Sprintf("result_%s.csv", time.Now().Format("20060102150405"))
	return filepath.Join(absDir, filename), nil
}

func writeReports(path string, reports []brandmatch.Report) error {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return brandmatch.WriteReportsXLSX(path, reports)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create result file: %w", err)
	}
	if err := brandmatch.WriteReportsCSV(f, reports); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printReport(w io.Writer, r brandmatch.Report) {
	fmt.Fprintf(w, "\n==== %s (umbral %.0f) ====\n", r.Query, r.Threshold)
	for _, warn := range r.Warnings {
		fmt.Fprintf(w, "  ! %s\n", warn.Message)
	}
	if len(r.Matches) == 0 {
		fmt.Fprintln(w, "  Sin coincidencias")
		return
	}
	for i, m := range r.Matches {
		fmt.Fprintf(w, "  %2d. %-36s %6.2f  %s\n", i+1, m.Display, m.Score, m.Strategy)
	}
	for _, g := range r.Groups {
		if len(g.Matches) == 0 {
			continue
		}
		names := make([]string, len(g.Matches))
		for i, m := range g.Matches {
			names[i] = fmt.Sprintf("%s (%.1f)", m.Display, m.Score)
		}
		fmt.Fprintf(w, "  [%s] %s\n", g.Family, strings.Join(names, ", "))
	}
}
