package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/tade-balogun/policy-engine/constants"
	"github.com/tade-balogun/policy-engine/internal/async"
	"github.com/tade-balogun/policy-engine/internal/chunker"
	"github.com/tade-balogun/policy-engine/internal/common"
	"github.com/tade-balogun/policy-engine/internal/extract"
	"github.com/tade-balogun/policy-engine/internal/index"
	"github.com/tade-balogun/policy-engine/internal/ingest"
	"github.com/tade-balogun/policy-engine/internal/ocr"
	"github.com/tade-balogun/policy-engine/internal/pipeline"
	"github.com/tade-balogun/policy-engine/internal/progress"
	"github.com/tade-balogun/policy-engine/internal/repository"
	"github.com/tade-balogun/policy-engine/internal/storage"
	"github.com/tade-balogun/policy-engine/internal/vectorstore"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	app := &cli.App{
		Name:  "ingestd",
		Usage: "document ingestion pipeline: extraction, OCR, chunking and indexing",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "env-file", Value: ".env", Usage: "environment file to load"},
		},
		Before: func(c *cli.Context) error {
			if err := godotenv.Load(c.String("env-file")); err != nil {
				logger.Debug("no env file loaded", "path", c.String("env-file"))
			}
			return nil
		},
		Commands: []*cli.Command{
			uploadCommand(logger),
			reprocessCommand(logger),
			statusCommand(logger),
			jobsCommand(logger),
			documentCommand(logger),
			searchCommand(logger),
			deleteCommand(logger),
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// env assembles the full pipeline once per command invocation.
type env struct {
	cfg     *common.Config
	service *ingest.Service
	queue   *async.ProcessorQueue
	cleanup func()
}

func buildEnv(ctx context.Context, logger *slog.Logger) (*env, error) {
	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	pool, db, err := repository.Open(ctx, repository.Config{
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	jobs := repository.NewJobRepository(pool, logger)
	manifests := repository.NewManifestRepository(pool, logger)
	files := storage.NewFileStore(cfg.Storage.DataDir)
	pageText := storage.NewPageTextStore(files)

	runner := ocr.NewExecRunner()
	extractor := extract.NewExtractor(runner, cfg.OCR, logger)
	deterministic := ocr.NewTesseractEngine(runner, cfg.OCR, logger)
	vision, err := ocr.NewVisionEngine(cfg.OCR, logger)
	if err != nil {
		repository.Close(pool, db, logger)
		return nil, err
	}
	renderer := ocr.NewRenderer(runner, cfg.OCR)
	hybrid := ocr.NewHybridExtractor(renderer, deterministic, vision, cfg.OCR, logger)

	store := vectorstore.New(db, cfg.Embedding.Dimensions, logger)
	embedder, err := index.NewOpenAIEmbedder(cfg.Embedding, logger)
	if err != nil {
		repository.Close(pool, db, logger)
		return nil, err
	}
	writer := index.NewWriter(embedder, store, cfg.Embedding, logger)
	chunks := chunker.New(cfg.Chunking)

	tracker := progress.NewStore(24*time.Hour, logger)
	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	go tracker.Janitor(janitorCtx, time.Hour)

	proc := pipeline.NewProcessor(jobs, manifests, files, pageText,
		extractor, hybrid, deterministic, vision, chunks, writer, store, tracker, cfg, logger)

	queue := async.NewProcessorQueue(proc, logger,
		async.WithWorkers(cfg.Worker.Workers),
		async.WithQueueSize(cfg.Worker.QueueSize),
		async.WithJobTimeout(cfg.Worker.JobTimeout),
	)

	service := ingest.NewService(jobs, manifests, files, store, embedder, queue, tracker, logger)

	return &env{
		cfg:     cfg,
		service: service,
		queue:   queue,
		cleanup: func() {
			stopJanitor()
			repository.Close(pool, db, logger)
		},
	}, nil
}

// drain stops intake and waits for queued jobs to finish.
func (e *env) drain(logger *slog.Logger) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	drainCtx, cancel := context.WithTimeout(ctx, e.cfg.Worker.JobTimeout)
	defer cancel()
	e.queue.Shutdown(drainCtx)
	logger.Info("queue drained")
}

func uploadCommand(logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "upload",
		Usage: "upload a document and process it to a terminal status",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "tenant", Required: true},
			&cli.StringFlag{Name: "document", Usage: "document id; defaults to a new UUID"},
			&cli.StringFlag{Name: "file", Required: true, Usage: "path to the PDF"},
			&cli.StringFlag{Name: "preset", Value: "normal_ocr", Usage: "normal_ocr or table_ocr"},
		},
		Action: func(c *cli.Context) error {
			e, err := buildEnv(c.Context, logger)
			if err != nil {
				return err
			}
			defer e.cleanup()

			content, err := os.ReadFile(c.String("file"))
			if err != nil {
				return fmt.Errorf("read upload: %w", err)
			}
			documentID := c.String("document")
			if documentID == "" {
				documentID = uuid.NewString()
			}

			job, err := e.service.Upload(c.Context,
				c.String("tenant"), documentID, filepath.Base(c.String("file")),
				content, constants.ParseOCRPreset(c.String("preset")))
			if err != nil {
				return err
			}
			logger.Info("job queued", "job_id", job.ID, "document_id", documentID)

			e.drain(logger)
			return reportStatus(logger, e, job.ID)
		},
	}
}

func reprocessCommand(logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "reprocess",
		Usage: "re-run OCR or rebuild fragments for an uploaded document",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "tenant", Required: true},
			&cli.StringFlag{Name: "document", Required: true},
			&cli.StringFlag{Name: "mode", Value: "full", Usage: "ocr_only or full"},
			&cli.StringFlag{Name: "preset", Value: "normal_ocr"},
		},
		Action: func(c *cli.Context) error {
			mode, ok := constants.ParseReprocessMode(c.String("mode"))
			if !ok || mode == constants.ReprocessNone {
				return fmt.Errorf("invalid reprocess mode %q", c.String("mode"))
			}

			e, err := buildEnv(c.Context, logger)
			if err != nil {
				return err
			}
			defer e.cleanup()

			job, err := e.service.Reprocess(c.Context,
				c.String("tenant"), c.String("document"), mode,
				constants.ParseOCRPreset(c.String("preset")))
			if err != nil {
				return err
			}
			logger.Info("reprocess queued", "job_id", job.ID, "mode", mode)

			e.drain(logger)
			return reportStatus(logger, e, job.ID)
		},
	}
}

func statusCommand(logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "print one job's progress snapshot",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "job", Required: true},
		},
		Action: func(c *cli.Context) error {
			jobID, err := uuid.Parse(c.String("job"))
			if err != nil {
				return fmt.Errorf("invalid job id: %w", err)
			}
			e, err := buildEnv(c.Context, logger)
			if err != nil {
				return err
			}
			defer e.cleanup()
			return reportStatus(logger, e, jobID)
		},
	}
}

func jobsCommand(logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "jobs",
		Usage: "list a tenant's jobs, most recent first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "tenant", Required: true},
		},
		Action: func(c *cli.Context) error {
			e, err := buildEnv(c.Context, logger)
			if err != nil {
				return err
			}
			defer e.cleanup()

			jobs, err := e.service.ListJobs(c.Context, c.String("tenant"))
			if err != nil {
				return err
			}
			for _, j := range jobs {
				fmt.Printf("%s  %-10s  %s  pages=%d/%d fragments=%d/%d  %s\n",
					j.ID, j.Status, j.DocumentID,
					j.PagesDone, j.PagesTotal, j.FragmentsDone, j.FragmentsTotal, j.Error)
			}
			return nil
		},
	}
}

func documentCommand(logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "document",
		Usage: "print a document's per-page manifest and live indexed fragment count",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "tenant", Required: true},
			&cli.StringFlag{Name: "document", Required: true},
		},
		Action: func(c *cli.Context) error {
			e, err := buildEnv(c.Context, logger)
			if err != nil {
				return err
			}
			defer e.cleanup()

			manifest, indexed, err := e.service.DocumentState(c.Context, c.String("tenant"), c.String("document"))
			if err != nil {
				return err
			}
			fmt.Printf("%s  %s  status=%s fragments=%d indexed=%d\n",
				manifest.DocumentID, manifest.Filename, manifest.Status, manifest.Fragments, indexed)
			for _, p := range manifest.Pages {
				fmt.Printf("  page %-4d %-10s ocr=%-5t lines=%d  %s\n",
					p.PageNumber, p.Status, p.OCRUsed, p.LineCount, p.Error)
			}
			return nil
		},
	}
}

func searchCommand(logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "search",
		Usage: "similarity-search a tenant's indexed fragments",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "tenant", Required: true},
			&cli.StringFlag{Name: "query", Required: true},
			&cli.IntFlag{Name: "top", Value: 5, Usage: "number of hits to return"},
			&cli.StringSliceFlag{Name: "document", Usage: "restrict to document ids; repeatable"},
		},
		Action: func(c *cli.Context) error {
			e, err := buildEnv(c.Context, logger)
			if err != nil {
				return err
			}
			defer e.cleanup()

			hits, err := e.service.Search(c.Context,
				c.String("tenant"), c.String("query"), c.Int("top"), c.StringSlice("document"))
			if err != nil {
				return err
			}
			for _, h := range hits {
				fmt.Printf("%.4f  %s p%d L%d-%d (%s)\n  %s\n",
					h.Score, h.DocumentID, h.Page, h.LineStart, h.LineEnd, h.Filename, h.Text)
			}
			return nil
		},
	}
}

func deleteCommand(logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "delete",
		Usage: "purge a document: indexed fragments, manifest and on-disk files",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "tenant", Required: true},
			&cli.StringFlag{Name: "document", Required: true},
		},
		Action: func(c *cli.Context) error {
			e, err := buildEnv(c.Context, logger)
			if err != nil {
				return err
			}
			defer e.cleanup()
			return e.service.Delete(c.Context, c.String("tenant"), c.String("document"))
		},
	}
}

func reportStatus(logger *slog.Logger, e *env, jobID uuid.UUID) error {
	snap, err := e.service.Status(context.Background(), jobID)
	if err != nil {
		return err
	}
	if rec, ok := e.service.Live(jobID); ok {
		logger.Info("live progress",
			"job_id", jobID, "state", rec.Status, "step", rec.CurrentStep, "percent", rec.Percentage)
	}
	logger.Info("job status",
		"job_id", snap.JobID,
		"status", snap.Status,
		"pages", fmt.Sprintf("%d/%d", snap.PagesDone, snap.PagesTotal),
		"fragments", fmt.Sprintf("%d/%d", snap.FragmentsDone, snap.FragmentsTotal),
		"ocr_attempted", snap.OCRAttempted,
		"ocr_available", snap.OCRAvailable,
		"error", snap.Error,
	)
	if snap.Status != constants.JobStatusReady {
		return cli.Exit(fmt.Sprintf("job %s finished with status %s", snap.JobID, snap.Status), 1)
	}
	return nil
}
