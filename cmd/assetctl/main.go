package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/studiomoa/assetpipe/internal/app"
	"github.com/studiomoa/assetpipe/internal/assets/migrate"
)

type keyList []string

func (l *keyList) String() string { return strings.Join(*l, ",") }
func (l *keyList) Set(v string) error {
	v = strings.TrimSpace(v)
	if v != "" {
		*l = append(*l, v)
	}
	return nil
}

func usage() {
	fmt.Println("usage: assetctl <migrate|retry|reconcile|verify> [flags]")
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	switch os.Args[1] {
	case "migrate":
		runMigrate(os.Args[2:])
	case "retry":
		runRetry(os.Args[2:])
	case "reconcile":
		runReconcile(os.Args[2:])
	case "verify":
		runVerify(os.Args[2:])
	default:
		usage()
	}
}

func mustApp(cfgPath string) *app.App {
	application, err := app.New(cfgPath)
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		os.Exit(1)
	}
	return application
}

func runMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	var subjects keyList
	cfgPath := fs.String("config", "", "yaml pipeline config path")
	partition := fs.String("partition", time.Now().Format("2006-01-02"), "partition key for target paths")
	force := fs.Bool("force", false, "overwrite already-migrated targets")
	dryRun := fs.Bool("dry-run", false, "print planned tasks without executing")
	limit := fs.Int("limit", 0, "limit number of tasks processed")
	reportPath := fs.String("report", "", "run report output path (default from config)")
	fs.Var(&subjects, "subject", "subject key to migrate (repeatable; default all folders under source prefix)")
	fs.Parse(args)

	application := mustApp(*cfgPath)
	defer application.Close()
	ctx := context.Background()

	tasks, err := collectTasks(ctx, application, subjects, *partition, *limit)
	if err != nil {
		fmt.Printf("collect tasks: %v\n", err)
		os.Exit(1)
	}
	if len(tasks) == 0 {
		fmt.Println("no source files found")
		return
	}
	if *dryRun {
		for _, t := range tasks {
			fmt.Printf("[dry-run] %s subject=%s partition=%s\n", t.SourcePath, t.SubjectKey, t.PartitionKey)
		}
		fmt.Printf("[dry-run] %d task(s)\n", len(tasks))
		return
	}

	runAndReport(ctx, application, tasks, migrate.Options{
		ForceOverwrite: *force,
		Concurrency:    application.Cfg.Migration.Concurrency,
	}, *reportPath)
}

func runRetry(args []string) {
	fs := flag.NewFlagSet("retry", flag.ExitOnError)
	cfgPath := fs.String("config", "", "yaml pipeline config path")
	reportIn := fs.String("from", "", "previous run report to retry from (required)")
	reportOut := fs.String("report", "", "run report output path (default from config)")
	force := fs.Bool("force", false, "overwrite already-migrated targets")
	fs.Parse(args)

	if *reportIn == "" {
		fmt.Println("retry requires -from <report.json>")
		os.Exit(2)
	}
	previous, err := migrate.LoadReport(*reportIn)
	if err != nil {
		fmt.Printf("load report: %v\n", err)
		os.Exit(1)
	}
	tasks := previous.TasksForRetry()
	if len(tasks) == 0 {
		fmt.Println("nothing to retry")
		return
	}

	application := mustApp(*cfgPath)
	defer application.Close()

	runAndReport(context.Background(), application, tasks, migrate.Options{
		ForceOverwrite: *force,
		Concurrency:    application.Cfg.Migration.Concurrency,
	}, *reportOut)
}

func runReconcile(args []string) {
	fs := flag.NewFlagSet("reconcile", flag.ExitOnError)
	var urls keyList
	cfgPath := fs.String("config", "", "yaml pipeline config path")
	fs.Var(&urls, "url", "asset url to reconcile (repeatable; default all records)")
	fs.Parse(args)

	application := mustApp(*cfgPath)
	defer application.Close()
	ctx := context.Background()

	var results interface{}
	var err error
	if len(urls) > 0 {
		results, err = application.Services.Reconciler.Reconcile(ctx, urls)
	} else {
		results, err = application.Services.Reconciler.ReconcileAll(ctx)
	}
	if err != nil {
		fmt.Printf("reconcile: %v\n", err)
		os.Exit(1)
	}
	printJSON(results)
}

func runVerify(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	cfgPath := fs.String("config", "", "yaml pipeline config path")
	fs.Parse(args)

	application := mustApp(*cfgPath)
	defer application.Close()

	report, err := application.Services.Verifier.Verify(context.Background())
	if err != nil {
		fmt.Printf("verify: %v\n", err)
		os.Exit(1)
	}
	printJSON(report)
	if err := report.ConflictErr(); err != nil {
		fmt.Printf("%v\n", err)
		os.Exit(1)
	}
}

// collectTasks lists source objects under the configured prefix and turns
// them into migration tasks, one subject folder at a time.
func collectTasks(ctx context.Context, application *app.App, subjects keyList, partition string, limit int) ([]migrate.Task, error) {
	prefix := application.Cfg.Migration.SourcePrefix
	if len(subjects) == 0 {
		folders, err := application.Store.ListFolders(ctx, prefix)
		if err != nil {
			return nil, fmt.Errorf("list subject folders under %q: %w", prefix, err)
		}
		subjects = keyList(folders)
	}

	tasks := []migrate.Task{}
	for _, subjectKey := range subjects {
		objects, err := application.Store.List(ctx, prefix+subjectKey+"/")
		if err != nil {
			return nil, fmt.Errorf("list sources for %q: %w", subjectKey, err)
		}
		for _, obj := range objects {
			tasks = append(tasks, migrate.Task{
				SourcePath:       obj.Path,
				SubjectKey:       subjectKey,
				PartitionKey:     partition,
				OriginalFilename: path.Base(obj.Path),
				TargetFormat:     application.Cfg.Migration.TargetFormat,
			})
			if limit > 0 && len(tasks) >= limit {
				return tasks, nil
			}
		}
	}
	return tasks, nil
}

func runAndReport(ctx context.Context, application *app.App, tasks []migrate.Task, opts migrate.Options, reportPath string) {
	report, err := application.Services.Executor.Migrate(ctx, tasks, opts)
	if err != nil {
		fmt.Printf("migrate: %v\n", err)
		os.Exit(1)
	}
	if reportPath == "" {
		reportPath = application.Cfg.Migration.ReportPath
	}
	if err := report.WriteFile(reportPath); err != nil {
		fmt.Printf("write report: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%s: migrated=%d skipped=%d deleted=%d unclassified=%d orphans=%d failed=%d (report: %s)\n",
		report.Status,
		report.Summary.Migrated,
		report.Summary.SkippedDuplicate,
		report.Summary.DeletedNonMedia,
		report.Summary.Unclassified,
		report.Summary.OrphanRecords,
		report.Summary.Failed,
		reportPath,
	)
}

func printJSON(v interface{}) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("encode output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(raw))
}
