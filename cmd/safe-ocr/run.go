package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/Lllllllleong/safeocr/internal/gcp"
	"github.com/Lllllllleong/safeocr/internal/ledger"
	"github.com/Lllllllleong/safeocr/internal/models"
	"github.com/Lllllllleong/safeocr/internal/services"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type runOptions struct {
	root          string
	execute       bool
	logPath       string
	lang          string
	renderer      string
	ocrJobs       int
	parallelFiles int
	samplePages   int
	pageMinChars  int
	minCoverage   float64
	deskew        bool
	deskewMode    string
	extra         []string
	ocrBinary     string
	optimize      int
	exts          []string
	hash          bool

	ledgerPath          string
	firestoreProject    string
	firestoreCollection string
	uploadLog           string
}

func newRunCmd() *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Classify, OCR and commit every untagged document under --root (dry run unless --execute)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd.Context(), cmd.OutOrStdout(), o)
		},
	}

	env := gcp.EnvKey
	f := cmd.Flags()
	f.StringVar(&o.root, "root", gcp.GetEnv(env("root"), ""), "Directory tree to scan (required)")
	f.BoolVar(&o.execute, "execute", gcp.GetEnvBool(env("execute"), false), "Make real changes; without it the run is a dry run")
	f.StringVar(&o.logPath, "log", gcp.GetEnv(env("log"), ""), "Append one JSON outcome record per document to this file")
	f.StringVar(&o.lang, "lang", gcp.GetEnv(env("lang"), "eng"), "OCR language(s), e.g. eng+deu")
	f.StringVar(&o.renderer, "renderer", gcp.GetEnv(env("renderer"), string(services.RendererSandwich)), "OCR renderer: sandwich or hocr")
	f.IntVar(&o.ocrJobs, "ocr-jobs", gcp.GetEnvInt(env("ocr-jobs"), 2), "Parallelism requested from the OCR tool per file")
	f.IntVar(&o.parallelFiles, "parallel-files", gcp.GetEnvInt(env("parallel-files"), 4), "Documents processed concurrently")
	f.IntVar(&o.samplePages, "sample-pages", gcp.GetEnvInt(env("sample-pages"), 20), "Pages sampled per document for classification")
	f.IntVar(&o.pageMinChars, "page-min-chars", gcp.GetEnvInt(env("page-min-chars"), 150), "Characters a sampled page needs to count as texty")
	f.Float64Var(&o.minCoverage, "min-coverage", gcp.GetEnvFloat(env("min-coverage"), 0.30), "Texty-page fraction at or above which OCR is skipped")
	f.BoolVar(&o.deskew, "deskew", gcp.GetEnvBool(env("deskew"), false), "Enable deskew")
	f.StringVar(&o.deskewMode, "deskew-mode", gcp.GetEnv(env("deskew-mode"), string(services.DeskewOnRetry)), "retry: deskew only on the retry attempt; always: every attempt")
	f.StringArrayVar(&o.extra, "extra", strings.Fields(gcp.GetEnv(env("extra"), "")), "Extra argument passed to the OCR tool (repeatable)")
	f.StringVar(&o.ocrBinary, "ocr-binary", gcp.GetEnv(env("ocr-binary"), "ocrmypdf"), "OCR tool executable")
	f.IntVar(&o.optimize, "optimize", gcp.GetEnvInt(env("optimize"), 1), "Optimize level of the first attempt; the retry uses 0")
	f.StringSliceVar(&o.exts, "ext", splitList(gcp.GetEnv(env("ext"), ".pdf")), "File extensions to scan")
	f.BoolVar(&o.hash, "hash", gcp.GetEnvBool(env("hash"), true), "Record the SHA-256 of each source document")
	f.StringVar(&o.ledgerPath, "ledger", gcp.GetEnv(env("ledger"), ""), "Also record outcomes in this SQLite ledger")
	f.StringVar(&o.firestoreProject, "firestore-project", gcp.GetEnv(env("firestore-project"), ""), "Mirror outcomes to Firestore in this project")
	f.StringVar(&o.firestoreCollection, "firestore-collection", gcp.GetEnv(env("firestore-collection"), "ocr_outcomes"), "Firestore collection for mirrored outcomes")
	f.StringVar(&o.uploadLog, "upload-log", gcp.GetEnv(env("upload-log"), ""), "Upload the outcome log to gs://bucket/object after the run")
	return cmd
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (o *runOptions) validate() error {
	var errs []error
	if strings.TrimSpace(o.root) == "" {
		errs = append(errs, errors.New("--root is required"))
	} else if info, err := os.Stat(o.root); err != nil {
		errs = append(errs, fmt.Errorf("%w: %v", services.ErrScan, err))
	} else if !info.IsDir() {
		errs = append(errs, fmt.Errorf("%w: root %s is not a directory", services.ErrScan, o.root))
	}
	if _, err := services.ParseRenderer(o.renderer); err != nil {
		errs = append(errs, err)
	}
	if _, err := services.ParseDeskewMode(o.deskewMode); err != nil {
		errs = append(errs, err)
	}
	if o.parallelFiles < 1 {
		errs = append(errs, fmt.Errorf("--parallel-files must be at least 1, got %d", o.parallelFiles))
	}
	if o.ocrJobs < 1 {
		errs = append(errs, fmt.Errorf("--ocr-jobs must be at least 1, got %d", o.ocrJobs))
	}
	if o.samplePages < 1 {
		errs = append(errs, fmt.Errorf("--sample-pages must be at least 1, got %d", o.samplePages))
	}
	if o.minCoverage < 0 || o.minCoverage > 1 {
		errs = append(errs, fmt.Errorf("--min-coverage must be within [0, 1], got %g", o.minCoverage))
	}
	if o.optimize < 0 {
		errs = append(errs, fmt.Errorf("--optimize must not be negative, got %d", o.optimize))
	}
	if o.uploadLog != "" {
		if o.logPath == "" {
			errs = append(errs, errors.New("--upload-log needs --log"))
		} else if _, _, err := gcp.ParseGCSURI(o.uploadLog); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// openSinks builds every configured outcome sink. The progress printer is
// always present.
func (o *runOptions) openSinks(ctx context.Context, out io.Writer) ([]services.Sink, error) {
	sinks := []services.Sink{&progressSink{out: out}}
	closeAll := func() {
		for _, s := range sinks {
			s.Close()
		}
	}
	if o.logPath != "" {
		s, err := services.NewJSONLSink(o.logPath)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if o.ledgerPath != "" {
		s, err := ledger.Open(o.ledgerPath)
		if err != nil {
			closeAll()
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if o.firestoreProject != "" {
		s, err := gcp.NewFirestoreSink(ctx, o.firestoreProject, o.firestoreCollection)
		if err != nil {
			closeAll()
			return nil, err
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}

func runPipeline(parent context.Context, out io.Writer, o *runOptions) error {
	if err := o.validate(); err != nil {
		return err
	}
	renderer, _ := services.ParseRenderer(o.renderer)
	deskewMode, _ := services.ParseDeskewMode(o.deskewMode)
	root, err := filepath.Abs(o.root)
	if err != nil {
		return fmt.Errorf("%w: %v", services.ErrScan, err)
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	classifier, err := services.NewClassifier(services.NewPDFOpener(), services.ClassifierConfig{
		SamplePages:  o.samplePages,
		PageMinChars: o.pageMinChars,
		MinCoverage:  o.minCoverage,
	})
	if err != nil {
		return err
	}

	sinks, err := o.openSinks(ctx, out)
	if err != nil {
		return err
	}

	cfg := services.SchedulerConfig{
		RunID:         uuid.NewString(),
		Root:          root,
		Extensions:    o.exts,
		Execute:       o.execute,
		ParallelFiles: o.parallelFiles,
		HashFiles:     o.hash,
		Invoker: services.InvokerConfig{
			Binary:        o.ocrBinary,
			Languages:     services.ParseLanguages(o.lang),
			Renderer:      renderer,
			JobsPerFile:   o.ocrJobs,
			OptimizeLevel: o.optimize,
			SkipText:      true,
			ExtraArgs:     o.extra,
		},
		Retry: services.RetryConfig{Deskew: o.deskew, DeskewMode: deskewMode},
		OnScan: func(docs []models.Document) {
			printBanner(out, o, root, len(docs))
		},
	}
	recorder := services.NewRecorder(sinks...)
	scheduler, err := services.NewScheduler(cfg, classifier, services.NewInvoker(), recorder)
	if err != nil {
		recorder.Close()
		return err
	}

	report, err := scheduler.Run(ctx)
	if err != nil {
		return err
	}
	printSummary(out, o, report)

	if o.uploadLog != "" {
		if _, err := gcp.UploadLog(parent, o.uploadLog, o.logPath); err != nil {
			return fmt.Errorf("failed to upload outcome log: %w", err)
		}
	}
	return nil
}

func printBanner(out io.Writer, o *runOptions, root string, candidates int) {
	mode := "DRY-RUN"
	if o.execute {
		mode = "EXECUTE"
	}
	fmt.Fprintf(out, "Mode: %s\n", mode)
	fmt.Fprintf(out, "Root: %s\n", root)
	fmt.Fprintf(out, "Found %d untagged documents\n", candidates)
	fmt.Fprintf(out, "Parallel files: %d | Per-file OCR jobs: %d\n", o.parallelFiles, o.ocrJobs)
	if o.deskew {
		fmt.Fprintf(out, "Deskew: ON (%s)\n", o.deskewMode)
	} else {
		fmt.Fprintln(out, "Deskew: OFF")
	}
}

func printSummary(out io.Writer, o *runOptions, report *services.RunReport) {
	s := report.Summary
	finished := 0
	for _, n := range s.Counts {
		finished += n
	}
	fmt.Fprintln(out, "\nSummary:")
	fmt.Fprintf(out, "  Total scanned:        %d\n", s.Scanned)
	fmt.Fprintf(out, "  Skipped (searchable): %d\n", s.Counts[models.StateSkipped])
	fmt.Fprintf(out, "  Needs OCR (dry-run):  %d\n", s.Counts[models.StateWouldProcess])
	fmt.Fprintf(out, "  OCR committed:        %d\n", s.Counts[models.StateCommitted])
	fmt.Fprintf(out, "  Failed:               %d\n", s.Failed())
	if report.Interrupted {
		fmt.Fprintf(out, "  Not started:          %d (interrupted)\n", s.Scanned-finished)
	}
	if len(report.Recovered) > 0 {
		fmt.Fprintf(out, "  Leftover temp files:  %d\n", len(report.Recovered))
	}
	if o.logPath != "" {
		fmt.Fprintf(out, "  Log: %s\n", o.logPath)
	}
	if !o.execute {
		fmt.Fprintln(out, "\nNOTE: DRY-RUN mode. Re-run with --execute to make changes.")
	}
}

// progressSink prints one line per document that needed OCR.
type progressSink struct {
	out io.Writer
}

func (p *progressSink) Write(_ context.Context, rec models.OutcomeRecord) error {
	if rec.State == models.StateSkipped {
		return nil
	}
	fmt.Fprintf(p.out, "%-14s cov=%.2f  %s\n", rec.State, rec.Coverage, filepath.Base(rec.Path))
	if rec.ErrorMessage != "" {
		fmt.Fprintf(p.out, "  error: %s\n", services.TruncateUTF8(rec.ErrorMessage, 200))
	}
	return nil
}

func (p *progressSink) Close() error { return nil }
