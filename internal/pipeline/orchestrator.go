package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/kousskous/menu-extractor/constants"
	"github.com/kousskous/menu-extractor/internal/common"
	"github.com/kousskous/menu-extractor/internal/entity"
	"github.com/kousskous/menu-extractor/internal/ingest"
	"github.com/kousskous/menu-extractor/internal/llm"
	"github.com/kousskous/menu-extractor/internal/progress"
	"github.com/kousskous/menu-extractor/internal/utils"
)

// Checkpointer is the slice of the progress store the orchestrator drives.
type Checkpointer interface {
	Lookup(filename, digest string) (progress.Entry, bool)
	Commit(filename, digest string, in progress.CommitInput) error
	MarkFailed(filename, digest, reason string, attempts int) error
}

// Config holds orchestrator settings.
type Config struct {
	RestaurantsPath string
	FailuresPath    string
	BusinessContext string
	SkipHidden      bool
}

// FileResult is the outcome of one page within a run.
type FileResult struct {
	Filename    string
	Status      constants.FileStatus
	Cached      bool
	Restaurants []entity.Restaurant
	Rejections  []entity.Rejection
	Reason      string
	Attempts    int
	Elapsed     time.Duration
}

// RunReport is what the end of a run tells the user.
type RunReport struct {
	RunID           string
	Files           []FileResult
	Processed       int
	CacheHits       int
	Extracted       int
	Failed          int
	Restaurants     int
	Dishes          int
	RestaurantsPath string
	FailuresPath    string
	Elapsed         time.Duration
}

// Orchestrator runs pages strictly one at a time and checkpoints after each.
type Orchestrator struct {
	cfg         Config
	store       Checkpointer
	extractor   llm.Extractor
	salvager    *llm.Salvager
	tracker     RunTracker
	fingerprint func(path string) (string, error)
	logger      *slog.Logger
	now         func() time.Time
}

func NewOrchestrator(cfg Config, store Checkpointer, extractor llm.Extractor, salvager *llm.Salvager, tracker RunTracker, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if tracker == nil {
		tracker = NopTracker{}
	}
	return &Orchestrator{
		cfg:         cfg,
		store:       store,
		extractor:   extractor,
		salvager:    salvager,
		tracker:     tracker,
		fingerprint: progress.Fingerprint,
		logger:      logger,
		now:         time.Now,
	}
}

// Run processes every page of dir in natural filename order. Per-page failures
// are recorded and skipped; a checkpoint write failure or cancellation stops
// the run and is returned with the partial report.
func (o *Orchestrator) Run(ctx context.Context, dir string) (RunReport, error) {
	start := o.now()
	report := RunReport{
		RunID:           common.RunIDFromContext(ctx),
		RestaurantsPath: o.cfg.RestaurantsPath,
		FailuresPath:    o.cfg.FailuresPath,
	}
	if report.RunID == "" {
		report.RunID = uuid.New().String()
		ctx = common.WithRunID(ctx, report.RunID)
	}

	pages, stats, err := ingest.ListPages(dir, o.cfg.SkipHidden, o.logger)
	if err != nil {
		return report, common.NewAppError(common.CodeInput, "list images", errors.Join(common.ErrInvalidInput, err))
	}
	o.tracker.LogParams(ctx, map[string]string{
		"images_dir":  dir,
		"total_files": strconv.Itoa(len(pages)),
		"skipped":     strconv.Itoa(int(stats.Skipped)),
	})
	o.logger.Info("pipeline.run.start", "run_id", report.RunID, "dir", dir, "files", len(pages))

	aggregate := []entity.Restaurant{}
	failures := []entity.FileFailure{}

	if err := o.flushOutputs(aggregate, failures); err != nil {
		return report, err
	}

	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			o.logger.Warn("pipeline.run.cancelled", "run_id", report.RunID, "done", i, "files", len(pages))
			report.Elapsed = o.now().Sub(start)
			return report, err
		}

		res, digest, err := o.processFile(common.WithFilename(ctx, page.Filename), page)
		if err != nil {
			report.Elapsed = o.now().Sub(start)
			return report, err
		}

		report.Files = append(report.Files, res)
		report.Processed++
		switch res.Status {
		case constants.FileStatusCommitted:
			if res.Cached {
				report.CacheHits++
			} else {
				report.Extracted++
			}
			aggregate = append(aggregate, res.Restaurants...)
			report.Restaurants += len(res.Restaurants)
			for _, r := range res.Restaurants {
				report.Dishes += len(r.Dishes)
			}
		case constants.FileStatusFailed:
			report.Failed++
			failures = append(failures, entity.FileFailure{
				Filename:    res.Filename,
				Fingerprint: digest,
				Reason:      res.Reason,
				Attempts:    res.Attempts,
				FailedAt:    o.now().UTC(),
			})
		}

		if err := o.flushOutputs(aggregate, failures); err != nil {
			report.Elapsed = o.now().Sub(start)
			return report, err
		}
		o.logFileMetrics(ctx, i+1, res)
	}

	report.Elapsed = o.now().Sub(start)
	o.tracker.LogMetric(ctx, "files_processed", float64(report.Processed), report.Processed)
	o.tracker.LogMetric(ctx, "files_failed", float64(report.Failed), report.Processed)
	o.tracker.LogMetric(ctx, "cache_hits", float64(report.CacheHits), report.Processed)
	o.tracker.LogMetric(ctx, "total_restaurants", float64(report.Restaurants), report.Processed)
	o.tracker.LogMetric(ctx, "total_dishes", float64(report.Dishes), report.Processed)
	o.tracker.LogArtifact(ctx, "restaurants", o.cfg.RestaurantsPath)
	o.tracker.LogArtifact(ctx, "failures", o.cfg.FailuresPath)

	o.logger.Info("pipeline.run.done",
		"run_id", report.RunID,
		"processed", report.Processed,
		"cache_hits", report.CacheHits,
		"extracted", report.Extracted,
		"failed", report.Failed,
		"restaurants", report.Restaurants,
		"dishes", report.Dishes,
		"elapsed_ms", report.Elapsed.Milliseconds(),
	)
	return report, nil
}

// processFile moves one page from Pending to a terminal state and checkpoints
// it. The returned error is non-nil only for run-stopping conditions.
func (o *Orchestrator) processFile(ctx context.Context, page ingest.Page) (FileResult, string, error) {
	start := o.now()
	res := FileResult{Filename: page.Filename, Status: constants.FileStatusPending}
	logger := o.logger.With("file", page.Filename)

	digest, err := o.fingerprint(page.Path)
	if err != nil {
		return o.fail(res, "", fmt.Sprintf("fingerprint: %v", err), start, logger)
	}

	if entry, ok := o.store.Lookup(page.Filename, digest); ok {
		res.Status = constants.FileStatusCacheHit
		logger.Info("pipeline.file.cache_hit", "restaurants", len(entry.Restaurants))
		res.Cached = true
		res.Restaurants = entry.Restaurants
		res.Rejections = entry.Rejections
		res.Attempts = entry.Attempts
		res.Status = constants.FileStatusCommitted
		res.Elapsed = o.now().Sub(start)
		return res, digest, nil
	}

	res.Status = constants.FileStatusExtracting
	logger.Info("pipeline.file.extracting", "size", page.Size)
	raw, err := o.extractor.Extract(ctx, llm.ExtractRequest{
		ImagePath:       page.Path,
		Filename:        page.Filename,
		BusinessContext: o.cfg.BusinessContext,
	})
	res.Attempts = raw.Attempts
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, digest, ctxErr
		}
		return o.fail(res, digest, err.Error(), start, logger)
	}

	res.Status = constants.FileStatusValidating
	salvaged := o.salvager.Salvage(raw.Doc, page.Filename)
	res.Rejections = salvaged.Rejections
	for _, rej := range salvaged.Rejections {
		logger.Debug("pipeline.file.rejection", "path", rej.Path, "reason", rej.Reason)
	}
	if salvaged.Empty() && len(salvaged.Rejections) > 0 {
		return o.fail(res, digest, fmt.Sprintf("no valid restaurant (%d rejection(s), first: %s %s)",
			len(salvaged.Rejections), salvaged.Rejections[0].Path, salvaged.Rejections[0].Reason), start, logger)
	}

	res.Restaurants = salvaged.Restaurants
	res.Elapsed = o.now().Sub(start)
	if err := o.store.Commit(page.Filename, digest, progress.CommitInput{
		Restaurants: res.Restaurants,
		Rejections:  res.Rejections,
		Attempts:    res.Attempts,
		Elapsed:     res.Elapsed,
	}); err != nil {
		logger.Error("pipeline.file.commit_error", "error", err)
		return res, digest, err
	}
	res.Status = constants.FileStatusCommitted
	logger.Info("pipeline.file.committed",
		"restaurants", len(res.Restaurants),
		"rejections", len(res.Rejections),
		"attempts", res.Attempts,
		"strict_valid", raw.StrictValid,
		"elapsed_ms", res.Elapsed.Milliseconds(),
	)
	return res, digest, nil
}

func (o *Orchestrator) fail(res FileResult, digest, reason string, start time.Time, logger *slog.Logger) (FileResult, string, error) {
	res.Reason = reason
	res.Elapsed = o.now().Sub(start)
	if err := o.store.MarkFailed(res.Filename, digest, reason, res.Attempts); err != nil {
		logger.Error("pipeline.file.checkpoint_error", "error", err)
		return res, digest, err
	}
	res.Status = constants.FileStatusFailed
	logger.Warn("pipeline.file.failed", "reason", reason, "attempts", res.Attempts)
	return res, digest, nil
}

func (o *Orchestrator) flushOutputs(aggregate []entity.Restaurant, failures []entity.FileFailure) error {
	if err := utils.WriteJSONAtomic(o.cfg.RestaurantsPath, aggregate); err != nil {
		return common.PersistError("write aggregated restaurants", err)
	}
	if o.cfg.FailuresPath == "" {
		return nil
	}
	if err := utils.WriteJSONAtomic(o.cfg.FailuresPath, failures); err != nil {
		return common.PersistError("write failure diagnostics", err)
	}
	return nil
}

func (o *Orchestrator) logFileMetrics(ctx context.Context, step int, res FileResult) {
	dishes := 0
	for _, r := range res.Restaurants {
		dishes += len(r.Dishes)
	}
	o.tracker.LogMetric(ctx, "file_elapsed_ms", float64(res.Elapsed.Milliseconds()), step)
	o.tracker.LogMetric(ctx, "file_restaurants", float64(len(res.Restaurants)), step)
	o.tracker.LogMetric(ctx, "file_dishes", float64(dishes), step)
	o.tracker.LogMetric(ctx, "file_attempts", float64(res.Attempts), step)
	if res.Status == constants.FileStatusFailed {
		o.tracker.LogMetric(ctx, "file_failed", 1, step)
	}
}
