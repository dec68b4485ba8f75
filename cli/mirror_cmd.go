package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/a-h/npmmirror/ledger"
	"github.com/a-h/npmmirror/mirrormetrics"
	"github.com/a-h/npmmirror/npm/downloader"
	"github.com/a-h/npmmirror/npm/metacache"
	"github.com/a-h/npmmirror/npm/mirror"
	"github.com/a-h/npmmirror/npm/pkgindex"
	"github.com/a-h/npmmirror/npm/progress"
	"github.com/a-h/npmmirror/npm/rangecache"
	"github.com/a-h/npmmirror/tree"
	"github.com/google/uuid"
)

// Run builds the tree, caches, downloader, and orchestrator from the
// parsed flags and drives a single mirror pass to completion, matching the
// shape of depot's ServeCmd.Run: a JSON slog handler gated by
// globals.Verbose, a background metrics listener, then the domain work.
func (cmd *MirrorCmd) Run(globals *Globals) error {
	opts := &slog.HandlerOptions{}
	if globals.Verbose {
		opts.Level = slog.LevelDebug
	}
	log := slog.New(slog.NewJSONHandler(os.Stderr, opts))

	out, err := cmd.outputTree(context.Background())
	if err != nil {
		return fmt.Errorf("failed to create output tree: %w", err)
	}

	go func() {
		if err := mirrormetrics.ListenAndServe(cmd.MetricsListenAddr); err != nil {
			log.Error("metrics server exited", slog.String("error", err.Error()))
		}
	}()

	m, err := mirrormetrics.New()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	mc := metacache.New()
	pr := progress.New()
	rc := rangecache.New()

	dl := downloader.New(downloader.Options{
		Tree:        out,
		MetaCache:   mc,
		Progress:    pr,
		Metrics:     m,
		RegistryURL: cmd.RegistryURL,
		Workers:     cmd.DLThreads,
		Logger:      log,
		PhaseLabel:  func() string { _, label := pr.Step(); return label },
		ProjectionOpts: pkgindex.ProjectionOptions{
			RegistryURL:    cmd.RegistryURL,
			NoDevDeps:      cmd.NoDevDeps,
			NoOptionalDeps: cmd.NoOptionalDeps,
			NoPeerDeps:     cmd.NoPeerDeps,
		},
	})
	dl.Start(context.Background(), cmd.DLThreads)

	orchestrator := mirror.New(mirror.Options{
		ManifestsPath: cmd.ManifestsPath,
		RegistryURL:   cmd.RegistryURL,
		Greedy:        cmd.Greedy,
		Verbose:       globals.Verbose,
		Logger:        log,
		Downloader:    dl,
		RangeCache:    rc,
		MetaCache:     mc,
		Progress:      pr,
	})

	log.Info("mirror run starting", slog.String("registryURL", cmd.RegistryURL))
	started := time.Now()
	result, runErr := orchestrator.Run(context.Background())
	if closeErr := dl.Close(); closeErr != nil && runErr == nil {
		runErr = closeErr
	}

	cmd.recordRun(log, started, result, runErr)
	if runErr != nil {
		return fmt.Errorf("mirror run failed: %w", runErr)
	}

	log.Info("mirror run complete",
		slog.Int64("newPackages", result.NewPackages),
		slog.Int64("newPackagesBytes", result.NewPackagesBytes),
	)
	return nil
}

func (cmd *MirrorCmd) outputTree(ctx context.Context) (tree.Tree, error) {
	switch cmd.StorageType {
	case "s3":
		if cmd.S3.Bucket == "" {
			return nil, fmt.Errorf("--s3-bucket must also be set when --storage-type=s3")
		}
		return tree.NewS3Tree(ctx, tree.S3Config{
			Bucket:          cmd.S3.Bucket,
			Prefix:          cmd.Output,
			Region:          cmd.S3.Region,
			Endpoint:        cmd.S3.Endpoint,
			AccessKeyID:     cmd.S3.AccessKeyID,
			SecretAccessKey: cmd.S3.SecretAccessKey,
			ForcePathStyle:  cmd.S3.ForcePathStyle,
		})
	case "fs":
		if err := os.MkdirAll(cmd.Output, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
		return tree.NewFileSystem(cmd.Output), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q - expected 'fs' or 's3'", cmd.StorageType)
	}
}

// recordRun writes a ledger.Run when a database URL is configured. A
// ledger failure is logged but never fails the mirror run itself: the
// audit trail is a convenience, not a gate (see ledger package doc).
func (cmd *MirrorCmd) recordRun(log *slog.Logger, started time.Time, result mirror.Result, runErr error) {
	if cmd.DatabaseURL == "" {
		return
	}
	ctx := context.Background()
	store, closer, err := ledger.New(ctx, cmd.DatabaseType, cmd.DatabaseURL)
	if err != nil {
		log.Error("failed to open ledger store", slog.String("error", err.Error()))
		return
	}
	defer closer()

	run := ledger.Run{
		ID:          uuid.NewString(),
		StartedAt:   started,
		FinishedAt:  time.Now(),
		RegistryURL: cmd.RegistryURL,
		Greedy:      cmd.Greedy,
		Phase3: ledger.PhaseTotals{
			FilesSuccess: result.NewPackages,
			BytesSuccess: result.NewPackagesBytes,
		},
	}
	if runErr != nil {
		run.Err = runErr.Error()
	}
	if err := ledger.NewLedger(store).Record(ctx, run); err != nil {
		log.Error("failed to record run in ledger", slog.String("error", err.Error()))
	}
}
