package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/kbhuvana2005/patient-readmission-prediction/internal/artifacts"
	"github.com/kbhuvana2005/patient-readmission-prediction/internal/cache/redis"
	"github.com/kbhuvana2005/patient-readmission-prediction/internal/evaluation"
	"github.com/kbhuvana2005/patient-readmission-prediction/internal/inference"
	"github.com/kbhuvana2005/patient-readmission-prediction/internal/schema"
	"github.com/kbhuvana2005/patient-readmission-prediction/internal/storage/sqlite"
	"github.com/kbhuvana2005/patient-readmission-prediction/pkg/config"
	appLogger "github.com/kbhuvana2005/patient-readmission-prediction/pkg/logger"
)

const usage = `Usage: artifacts <command> [flags]

Commands:
  import    check a bundle directory and store it in a SQLite database
  inspect   list the artifacts and import history of a SQLite database
  evaluate  score a labeled CSV holdout set against a bundle
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err := appLogger.Init("info", "console", "stderr"); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	var err error
	switch os.Args[1] {
	case "import":
		err = runImport(os.Args[2:])
	case "inspect":
		err = runInspect(os.Args[2:])
	case "evaluate":
		err = runEvaluate(os.Args[2:])
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		appLogger.Error("Command failed", zap.String("command", os.Args[1]), zap.Error(err))
		os.Exit(1)
	}
}

func runImport(args []string) error {
	fs := pflag.NewFlagSet("import", pflag.ContinueOnError)
	dir := fs.String("dir", "./models", "bundle directory to import")
	dbPath := fs.String("db", "./data/artifacts.db", "SQLite database to write")
	resetDrift := fs.Bool("reset-drift", false, "clear unknown-category counters in the configured redis")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	bundle, err := artifacts.DirSource{Dir: *dir}.Load(ctx)
	if err != nil {
		return err
	}

	// A bundle that would not start the server is never stored.
	if _, err := artifacts.Build(bundle, schema.DefaultSchema()); err != nil {
		return fmt.Errorf("bundle rejected: %w", err)
	}

	store, err := sqlite.NewClient(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.InitSchema(); err != nil {
		return err
	}

	record, err := store.ImportBundle(ctx, bundle)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d artifacts from %s (version %q) as import #%d\n",
		record.ArtifactCount, record.Origin, record.ModelVersion, record.ID)

	if *resetDrift {
		return clearDrift(ctx)
	}
	return nil
}

func clearDrift(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !cfg.Redis.Enabled {
		return fmt.Errorf("redis is disabled in the configuration")
	}

	client, err := redis.NewClient(ctx, cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	defer client.Close()

	return client.ResetDrift(ctx)
}

func runInspect(args []string) error {
	fs := pflag.NewFlagSet("inspect", pflag.ContinueOnError)
	dbPath := fs.String("db", "./data/artifacts.db", "SQLite database to read")
	history := fs.Int("history", 5, "number of recent imports to list")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := sqlite.NewClient(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	list, err := store.ListArtifacts(ctx)
	if err != nil {
		return err
	}
	imports, err := store.ListImports(ctx, *history)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ARTIFACT\tSIZE\tSHA256\tUPDATED")
	for _, a := range list {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", a.Name, a.Size, a.Checksum, a.UpdatedAt.Format(time.RFC3339))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "IMPORT\tVERSION\tARTIFACTS\tORIGIN\tAT")
	for _, imp := range imports {
		fmt.Fprintf(w, "#%d\t%s\t%d\t%s\t%s\n", imp.ID, imp.ModelVersion, imp.ArtifactCount, imp.Origin, imp.ImportedAt.Format(time.RFC3339))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if _, err := artifacts.Open(ctx, store, schema.DefaultSchema()); err != nil {
		return fmt.Errorf("stored bundle does not load: %w", err)
	}
	fmt.Println("\nstored bundle loads cleanly")
	return nil
}

func runEvaluate(args []string) error {
	fs := pflag.NewFlagSet("evaluate", pflag.ContinueOnError)
	dir := fs.String("dir", "./models", "bundle directory to evaluate")
	dbPath := fs.String("db", "", "evaluate the bundle stored in this SQLite database instead of --dir")
	dataPath := fs.String("data", "", "labeled CSV holdout set (required)")
	label := fs.String("label", evaluation.DefaultLabelColumn, "name of the 0/1 outcome column")
	asJSON := fs.Bool("json", false, "print the report as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dataPath == "" {
		return fmt.Errorf("--data is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	var source artifacts.Source = artifacts.DirSource{Dir: *dir}
	if *dbPath != "" {
		store, err := sqlite.NewClient(*dbPath)
		if err != nil {
			return err
		}
		defer store.Close()
		source = store
	}

	rt, err := artifacts.Open(ctx, source, schema.DefaultSchema())
	if err != nil {
		return err
	}

	f, err := os.Open(*dataPath)
	if err != nil {
		return fmt.Errorf("failed to open holdout set: %w", err)
	}
	defer f.Close()

	dataset, err := evaluation.LoadDatasetFromCSV(f, *label)
	if err != nil {
		return err
	}

	report, err := evaluation.NewEvaluator(inference.NewEngine(rt, nil)).RunDatasetEvaluation(ctx, dataset)
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	fmt.Print(evaluation.GenerateReport(report))
	return nil
}
