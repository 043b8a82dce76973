package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/lead-admin/internal/importer"
	"github.com/sells-group/lead-admin/internal/model"
	"github.com/sells-group/lead-admin/internal/parser"
	"github.com/sells-group/lead-admin/internal/resilience"
)

var (
	importFile     string
	importXLSXPath string
	importSheet    string
	importSkipRows int
	importResume   bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk-import leads from pasted tabular text or a spreadsheet",
	Long:  "Parses tab- or space-delimited rows into leads, deduplicates by tax id, and writes them in batches with retry and checkpointing. An interrupted import can be continued with --resume.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		orch := importer.New(st, newConsoleSink(), orchestratorOptions())

		if importResume {
			cp, err := importer.FindResumable(ctx, st, cfg.Import.CheckpointTTL(), nil)
			if err != nil {
				return err
			}
			if cp == nil {
				return eris.New("no resumable import checkpoint found")
			}
			if err := orch.Restore(cp.Session); err != nil {
				return err
			}
			zap.L().Info("resuming import",
				zap.Int("cursor", cp.Session.CurrentBatchIndex),
				zap.Int("batches", len(cp.Session.Batches)),
				zap.Time("saved_at", cp.SavedAt),
			)
			return finishRun(orch.Resume(ctx))
		}

		raw, err := readImportInput()
		if err != nil {
			return err
		}

		if cp, err := importer.FindResumable(ctx, st, cfg.Import.CheckpointTTL(), nil); err == nil && cp != nil {
			zap.L().Warn("an unfinished import checkpoint exists and will be overwritten; use --resume to continue it instead")
		}

		result := parser.Parse(raw, importDefaults())
		if len(result.DuplicatesRemoved) > 0 {
			zap.L().Info("duplicate tax ids dropped from paste",
				zap.Int("count", len(result.DuplicatesRemoved)),
			)
		}
		if len(result.Records) == 0 {
			zap.L().Warn("no importable rows found")
			return nil
		}

		if err := orch.Load(result.Records); err != nil {
			return err
		}
		return finishRun(orch.Run(ctx))
	},
}

// finishRun maps the terminal run state to the process outcome. An interrupt
// leaves the checkpoint in place, so it is reported as resumable rather than
// as a failure.
func finishRun(state model.SessionState, err error) error {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			zap.L().Info("import interrupted; continue with: lead-admin import --resume")
			return nil
		}
		return err
	}
	if state == model.SessionPaused {
		zap.L().Info("import paused; continue with: lead-admin import --resume")
	}
	return nil
}

// readImportInput loads the raw tabular text from --xlsx, --file, or stdin.
func readImportInput() (string, error) {
	if importXLSXPath != "" {
		return parser.FromXLSX(importXLSXPath, parser.XLSXOptions{
			SheetName: importSheet,
			SkipRows:  importSkipRows,
		})
	}
	if importFile != "" {
		data, err := os.ReadFile(importFile)
		if err != nil {
			return "", eris.Wrapf(err, "read %s", importFile)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", eris.Wrap(err, "read stdin")
	}
	return string(data), nil
}

func orchestratorOptions() importer.Options {
	return importer.Options{
		MaxRetries: cfg.Import.MaxRetries,
		Backoff: resilience.LinearBackoff(
			time.Duration(cfg.Import.RetryBackoffMillis)*time.Millisecond,
			time.Duration(cfg.Import.MaxBackoffMillis)*time.Millisecond,
		),
		InterBatchDelay: time.Duration(cfg.Import.InterBatchDelayMillis) * time.Millisecond,
		CheckpointTTL:   cfg.Import.CheckpointTTL(),
	}
}

// consoleSink prints batch progress and the final summary to stderr.
type consoleSink struct {
	p *message.Printer
}

func newConsoleSink() *consoleSink {
	return &consoleSink{p: message.NewPrinter(language.English)}
}

func (s *consoleSink) OnProgress(p model.Progress) {
	eta := time.Duration(p.ETAMillis) * time.Millisecond
	s.p.Fprintf(os.Stderr, "batch %d/%d  processed %d/%d  ok %d  failed %d  eta %v\n",
		p.CurrentBatch, p.TotalBatches, p.Processed, p.Total,
		p.SuccessCount, p.FailureCount, eta.Round(time.Second),
	)
}

func (s *consoleSink) OnDone(r model.Result) {
	s.p.Fprintf(os.Stderr, "done: %d imported, %d errors in %v\n",
		len(r.SuccessRecords), len(r.ErrorRecords), r.TotalTime.Round(time.Second),
	)
	if r.PendingCount > 0 {
		s.p.Fprintf(os.Stderr, "cancelled with %d records still pending\n", r.PendingCount)
	}
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "path to a text file with pasted rows (default: stdin)")
	importCmd.Flags().StringVar(&importXLSXPath, "xlsx", "", "path to a spreadsheet to import instead of text")
	importCmd.Flags().StringVar(&importSheet, "sheet", "", "spreadsheet sheet name (default: first sheet)")
	importCmd.Flags().IntVar(&importSkipRows, "skip-rows", 0, "header rows to skip in the spreadsheet")
	importCmd.Flags().BoolVar(&importResume, "resume", false, "resume the checkpointed import instead of starting a new one")
	rootCmd.AddCommand(importCmd)
}
