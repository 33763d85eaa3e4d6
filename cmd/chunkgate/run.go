package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/chunkgate/internal/checkpoint"
	"github.com/dgallion1/chunkgate/internal/config"
	"github.com/dgallion1/chunkgate/internal/judge"
	"github.com/dgallion1/chunkgate/internal/parser"
	"github.com/dgallion1/chunkgate/internal/pipeline"
	"github.com/dgallion1/chunkgate/internal/record"
	"github.com/dgallion1/chunkgate/internal/validate"
)

type runOptions struct {
	docID        string
	strategy     string
	configURL    string
	output       string
	checkpoint   string
	chunkSize    int
	chunkOverlap int
	noLLM        bool
	noResume     bool
	force        bool
	dryRun       bool
	workers      int
}

func newRunCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run FILE...",
		Short: "Process documents, resuming from their checkpoints",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.docID != "" && len(args) > 1 {
				return errors.New("--doc-id can only be used with a single file")
			}
			overrides := opts.overrides(cmd)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runFiles(ctx, cmd.OutOrStdout(), loadConfig(), opts, overrides, args)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.docID, "doc-id", "", "document ID (default derived from the file name)")
	f.StringVar(&opts.strategy, "strategy", config.DefaultStrategy, "preset: "+strings.Join(config.StrategyNames, ", "))
	f.StringVar(&opts.configURL, "config", "", "YAML config file or URL layered over the preset")
	f.StringVar(&opts.output, "output", "", "output root (default $OUTPUT_DIR)")
	f.StringVar(&opts.checkpoint, "checkpoint", "", "checkpoint location (default $CHECKPOINT_URL)")
	f.IntVar(&opts.chunkSize, "chunk-size", 0, "chunk size in tokens")
	f.IntVar(&opts.chunkOverlap, "chunk-overlap", 0, "chunk overlap in tokens")
	f.BoolVar(&opts.noLLM, "no-llm", false, "disable semantic validation")
	f.BoolVar(&opts.noResume, "no-resume", false, "ignore existing checkpoints and start over")
	f.BoolVar(&opts.force, "force", false, "reprocess documents that are already complete")
	f.BoolVar(&opts.dryRun, "dry-run", false, "process without writing outputs or checkpoints")
	f.IntVar(&opts.workers, "workers", 0, "documents processed concurrently (default $WORKER_COUNT)")
	return cmd
}

// overrides builds the highest-priority config layer from explicitly set flags.
func (o runOptions) overrides(cmd *cobra.Command) map[string]any {
	layer := map[string]any{}
	if cmd.Flags().Changed("chunk-size") {
		config.SetPath(layer, "chunk.size", o.chunkSize)
	}
	if cmd.Flags().Changed("chunk-overlap") {
		config.SetPath(layer, "chunk.overlap", o.chunkOverlap)
	}
	if o.noLLM {
		config.SetPath(layer, "semantic.enabled", false)
	}
	if o.noResume {
		config.SetPath(layer, "runtime.resume", false)
	}
	if o.dryRun {
		config.SetPath(layer, "runtime.enable_checkpoint", false)
	}
	return layer
}

type fileResult struct {
	path string
	res  *pipeline.Result
	err  error
}

func runFiles(ctx context.Context, out io.Writer, cfg config.Config, opts runOptions, overrides map[string]any, files []string) error {
	log := newLogger(cfg)

	ids, err := docIDsFor(files, opts.docID)
	if err != nil {
		return err
	}

	params, err := config.Resolve(ctx, opts.strategy, opts.configURL, overrides)
	if err != nil {
		return err
	}
	log.Info("resolved parameters", "strategy", params.Strategy.Name,
		"chunk_size", params.Chunk.Size, "chunk_overlap", params.Chunk.Overlap,
		"semantic", params.Semantic.Enabled, "checkpoint_every", params.Runtime.CheckpointEvery)

	var store checkpoint.Store = checkpoint.NewMemoryStore()
	if !opts.dryRun {
		location := cfg.CheckpointURL
		if opts.checkpoint != "" {
			location = opts.checkpoint
		}
		if store, err = checkpoint.Open(ctx, location, checkpoint.Options{PathstoreAPIKey: cfg.PathstoreAPIKey}); err != nil {
			return fmt.Errorf("open checkpoint store: %w", err)
		}
	}
	defer store.Close()

	// One budget across every document of the invocation.
	runnerOpts := []pipeline.RunnerOption{
		pipeline.WithBudget(validate.NewBudget(params.Semantic.MaxCalls, log)),
		pipeline.WithStats(judge.NewLLMStats(time.Hour)),
	}
	if params.Semantic.Enabled {
		j, err := judge.New(params.JudgeConfig(cfg.ProviderKey(params.Semantic.Provider)))
		if err != nil {
			return fmt.Errorf("create judge: %w", err)
		}
		if c, ok := j.(interface{ Close() }); ok {
			defer c.Close()
		}
		runnerOpts = append(runnerOpts, pipeline.WithJudge(j))
	}
	runner := pipeline.NewRunner(params, store, log, runnerOpts...)

	outputDir := cfg.OutputDir
	if opts.output != "" {
		outputDir = opts.output
	}
	if opts.dryRun {
		outputDir = ""
	}
	workers := cfg.WorkerCount
	if opts.workers > 0 {
		workers = opts.workers
	}

	results := make([]fileResult, len(files))
	var g errgroup.Group
	g.SetLimit(max(workers, 1))
	for i, path := range files {
		docID := ids[i]
		g.Go(func() error {
			res, err := runFile(ctx, runner, path, docID, outputDir, opts.force, params.Runtime.Normalize, cfg.PDFFallbackPdftotext)
			results[i] = fileResult{path: path, res: res, err: err}
			return nil
		})
	}
	_ = g.Wait()

	return report(out, log, results)
}

func runFile(ctx context.Context, runner *pipeline.Runner, path, docID, outputDir string, force, normalize, fallback bool) (*pipeline.Result, error) {
	src, err := parser.Open(path, docID, parser.Options{FallbackPdftotext: fallback, Normalize: normalize})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer src.Close()
	return runner.Run(ctx, pipeline.Document{
		ID:        docID,
		Source:    src,
		OutputDir: outputDir,
		Force:     force,
	})
}

// report prints one line per document and returns an error when any of them
// did not finish.
func report(out io.Writer, log *slog.Logger, results []fileResult) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tDOC_ID\tOUTCOME\tPAGES\tACCEPTED\tREJECTED\tLLM_CALLS")
	var failed, interrupted int
	for _, r := range results {
		if r.res == nil {
			failed++
			fmt.Fprintf(tw, "%s\t-\t%s\t-\t-\t-\t-\n", r.path, pipeline.OutcomeFailed)
			log.Error("document failed", "file", r.path, "error", r.err)
			continue
		}
		cp := r.res.Checkpoint
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n", r.path, r.res.DocumentID, r.res.Outcome,
			cp.LastCompletedPage, cp.AcceptedCount, cp.RejectedCount, cp.LLMCallsMade)
		switch {
		case errors.Is(r.err, pipeline.ErrInterrupted):
			interrupted++
		case r.err != nil:
			failed++
			log.Error("document failed", "file", r.path, "doc_id", r.res.DocumentID, "error", r.err)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	switch {
	case failed > 0:
		return fmt.Errorf("%d of %d documents failed", failed, len(results))
	case interrupted > 0:
		return fmt.Errorf("%d of %d documents interrupted; run again to resume", interrupted, len(results))
	}
	return nil
}

var docIDUnsafe = regexp.MustCompile(`[^a-z0-9_-]+`)

// docIDFor derives a stable document ID from the file name so that a rerun of
// the same file finds its checkpoint.
func docIDFor(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	id := strings.Trim(docIDUnsafe.ReplaceAllString(strings.ToLower(stem), "_"), "_")
	if id == "" {
		return "document"
	}
	return id
}

// docIDsFor assigns one document ID per file. Files whose names derive the
// same ID get a suffix from their absolute path so they never share a
// checkpoint or output directory. Listing one file twice is an error.
func docIDsFor(files []string, explicit string) ([]string, error) {
	ids := make([]string, len(files))
	if explicit != "" {
		for i := range ids {
			ids[i] = explicit
		}
		return ids, nil
	}

	abs := make([]string, len(files))
	byID := make(map[string][]int)
	for i, path := range files {
		a, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", path, err)
		}
		abs[i] = a
		ids[i] = docIDFor(path)
		byID[ids[i]] = append(byID[ids[i]], i)
	}

	seen := make(map[string]string, len(files))
	for _, idx := range byID {
		for _, i := range idx {
			if prev, ok := seen[abs[i]]; ok {
				return nil, fmt.Errorf("%s is listed more than once (as %s and %s)", abs[i], prev, files[i])
			}
			seen[abs[i]] = files[i]
			if len(idx) > 1 {
				ids[i] = fmt.Sprintf("%s-%08x", ids[i], uint32(record.ContentHash(abs[i])))
			}
		}
	}
	return ids, nil
}
