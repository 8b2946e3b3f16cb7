package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"go-ml-pipeline/internal/artifacts"
	"go-ml-pipeline/internal/components"
	"go-ml-pipeline/internal/config"
	"go-ml-pipeline/internal/logger"
	"go-ml-pipeline/internal/pipeline"
	"go-ml-pipeline/internal/store"
	"go-ml-pipeline/pkg/dataset"
	"go-ml-pipeline/pkg/utils"
)

const usage = `Usage:
  pipeline run -config <config.yaml> [-until <stage>]
  pipeline predict -config <config.yaml> -input <rows.csv|rows.json> [-threshold <p>]
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := runWithArgs(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// runWithArgs returns 0 on success, 1 when a run or prediction fails and 2
// for usage and configuration errors
func runWithArgs(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	switch args[0] {
	case "run":
		return runCommand(ctx, args[1:], stdout, stderr)
	case "predict":
		return predictCommand(ctx, args[1:], stdout, stderr)
	case "-h", "--help", "help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n%s", args[0], usage)
		return 2
	}
}

func runCommand(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "config/config.yaml", "path to the pipeline config")
	until := fs.String("until", "", "last stage to run (ingestion, validation, transformation, training, evaluation)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 2
	}
	log, err := logger.New(logger.Config{
		Dir:    cfg.Run.LogsDir,
		Level:  cfg.Run.LogLevel,
		Stdout: cfg.Run.LogStdout,
		Name:   cfg.Run.Name,
	})
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 2
	}
	defer log.Close()

	sink, err := artifacts.Open(ctx, cfg.Run.ArtifactsDir, cfg.Run.ObjectStore, cfg.Run.Name)
	if err != nil {
		log.Error("artifact storage unavailable", "error", err)
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	stages, configs, err := components.Build(sink, cfg.StagesConfig, *until)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 2
	}

	opts := []pipeline.Option{}
	if cfg.Run.Database != "" {
		st, err := store.Open(ctx, cfg.Run.Database)
		if err != nil {
			log.Error("run database unavailable", "error", err)
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 1
		}
		defer st.Close()
		opts = append(opts, pipeline.WithObserver(st.Observer(cfg.Run.Name)))
	}

	runner := pipeline.NewRunner(log.Logger, opts...)
	final, err := runner.Run(ctx, stages, configs)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		if errors.Is(err, pipeline.ErrConfiguration) {
			return 2
		}
		return 1
	}

	if err := writeSummary(stdout, final); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// writeSummary prints the scalar and list values of the final artifact
func writeSummary(w io.Writer, final pipeline.Artifact) error {
	prov := final.Provenance()
	fmt.Fprintf(w, "%s artifact produced by %s (#%d)\n", final.Kind(), prov.Stage, prov.Seq)
	names := final.Names()
	sort.Strings(names)
	for _, name := range names {
		v, _ := final.Value(name)
		switch v.(type) {
		case [][]float64, []float64:
			continue
		case []string:
			b, err := json.Marshal(v)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "  %s: %s\n", name, b)
		default:
			fmt.Fprintf(w, "  %s: %s\n", name, utils.FormatValue(v))
		}
	}
	return nil
}

func predictCommand(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("predict", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "config/config.yaml", "path to the pipeline config")
	input := fs.String("input", "", "CSV or JSON file with the rows to score")
	threshold := fs.Float64("threshold", 0, "classification cut-off (default: evaluation.threshold)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *input == "" {
		fmt.Fprintf(stderr, "error: -input is required\n%s", usage)
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 2
	}
	cut := cfg.Evaluation.Threshold
	if *threshold != 0 {
		cut = *threshold
	}
	if cut <= 0 || cut >= 1 {
		fmt.Fprintf(stderr, "error: threshold must be in (0, 1), got %v\n", cut)
		return 2
	}

	table, err := readRows(*input)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	sink, err := artifacts.Open(ctx, cfg.Run.ArtifactsDir, cfg.Run.ObjectStore, cfg.Run.Name)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	predictor, err := components.LoadPredictor(ctx, sink, components.ModelLocation(sink))
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	preds, err := predictor.PredictTable(table, cut)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]any{
		"algorithm":   predictor.Algorithm(),
		"features":    predictor.Features(),
		"predictions": preds,
	}); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func readRows(path string) (*dataset.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	switch utils.GetFileType(path) {
	case "json":
		return dataset.ReadJSON(f)
	case "csv":
		return dataset.ReadCSV(f)
	default:
		return nil, fmt.Errorf("%s: %w (want .csv or .json)", path, components.ErrUnsupportedSource)
	}
}
