package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/northgate-data/ingest-cli/internal/apiclient"
)

// WatermarkPersistenceError means the final watermark write failed after a
// successful data sync. The data is durable; the progress marker is not, so
// the next run safely reprocesses the endpoint.
type WatermarkPersistenceError struct {
	Endpoint string
	Err      error
}

func (e *WatermarkPersistenceError) Error() string {
	return fmt.Sprintf("watermark not persisted for %s (data is durable, next run reprocesses): %v", e.Endpoint, e.Err)
}

func (e *WatermarkPersistenceError) Unwrap() error { return e.Err }

// RunOpts configures one orchestrator run.
type RunOpts struct {
	Source    Source
	Mode      Mode
	Endpoints []string // restrict to specific endpoint paths
	// Concurrency bounds parallel endpoint syncs. Endpoints are independent:
	// each has its own watermark row and the sink is append-only. The
	// default of 1 preserves strictly sequential processing. Concurrent
	// runs of the same endpoint remain unsafe and must be serialized by the
	// scheduler.
	Concurrency int
}

// Orchestrator iterates the endpoint registry, drives pagination per
// endpoint, persists pages, and commits watermarks, isolating failures so
// one endpoint never corrupts another's progress.
type Orchestrator struct {
	reg        *Registry
	clients    map[Source]apiclient.Client
	watermarks WatermarkStore
	sink       RawPageSink
	runs       RunLog // optional
}

// NewOrchestrator creates an orchestrator. runs may be nil to disable run
// history logging.
func NewOrchestrator(reg *Registry, clients map[Source]apiclient.Client, watermarks WatermarkStore, sink RawPageSink, runs RunLog) *Orchestrator {
	return &Orchestrator{
		reg:        reg,
		clients:    clients,
		watermarks: watermarks,
		sink:       sink,
		runs:       runs,
	}
}

// Run executes one sync pass for a source. Per-endpoint errors are captured
// in the report and never abort the run; only context cancellation or an
// unusable configuration does.
func (o *Orchestrator) Run(ctx context.Context, opts RunOpts) (*SyncReport, error) {
	log := zap.L().With(
		zap.String("component", "ingest.orchestrator"),
		zap.String("source", string(opts.Source)),
		zap.String("mode", string(opts.Mode)),
	)

	client, ok := o.clients[opts.Source]
	if !ok {
		return nil, eris.Errorf("orchestrator: no API client configured for source %q", opts.Source)
	}

	endpoints, err := o.reg.Select(opts.Source, opts.Endpoints)
	if err != nil {
		return nil, err
	}

	report := &SyncReport{
		RunID:     uuid.New(),
		Source:    opts.Source,
		Mode:      opts.Mode,
		StartedAt: time.Now().UTC(),
	}

	if len(endpoints) == 0 {
		log.Info("no endpoints selected")
		report.CompletedAt = time.Now().UTC()
		return report, nil
	}

	// Full refresh clears the landing zone for the whole source before any
	// endpoint runs. Incremental runs only ever append.
	if opts.Mode == ModeFull {
		if err := o.sink.Clear(ctx, opts.Source); err != nil {
			return nil, eris.Wrapf(err, "orchestrator: clear sink for %s", opts.Source)
		}
		log.Info("cleared raw pages for full refresh")
	}

	driver := NewDriver(client)

	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	var mu sync.Mutex
	results := make([]EndpointResult, len(endpoints))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, cfg := range endpoints {
		g.Go(func() error {
			res, err := o.syncEndpoint(gctx, driver, cfg, report.RunID, opts.Mode)
			if err != nil {
				// Only cancellation propagates; everything else is in res.
				return err
			}
			mu.Lock()
			results[i] = res
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	report.Results = results
	report.CompletedAt = time.Now().UTC()

	log.Info("sync run complete",
		zap.String("run_id", report.RunID.String()),
		zap.Int("endpoints", len(report.Results)),
		zap.Int("failed", report.FailedCount()),
		zap.Int64("records", report.TotalRecords()),
	)
	return report, nil
}

// syncEndpoint runs one endpoint end to end. The watermark is committed only
// after every page landed; any failure discards the candidate so the stored
// watermark stays at the last fully successful pass.
func (o *Orchestrator) syncEndpoint(ctx context.Context, driver *Driver, cfg EndpointConfig, runID uuid.UUID, mode Mode) (EndpointResult, error) {
	log := zap.L().With(
		zap.String("source", string(cfg.Source)),
		zap.String("endpoint", cfg.Path),
	)

	res := EndpointResult{Endpoint: cfg.Path, Source: cfg.Source}
	start := time.Now()

	fail := func(logID int64, err error) (EndpointResult, error) {
		if ctx.Err() != nil {
			return EndpointResult{}, ctx.Err()
		}
		res.Error = err.Error()
		res.Duration = time.Since(start)
		log.Error("endpoint sync failed", zap.Error(err), zap.Duration("elapsed", res.Duration))
		o.logFail(ctx, logID, err)
		return res, nil
	}

	var logID int64
	if o.runs != nil {
		id, err := o.runs.Start(ctx, runID, cfg.Source, cfg.Path)
		if err != nil {
			log.Warn("failed to record run start", zap.Error(err))
		} else {
			logID = id
		}
	}

	wm, err := o.watermarks.Get(ctx, cfg.Source, cfg.Path)
	if err != nil {
		return fail(logID, eris.Wrapf(err, "orchestrator: read watermark for %s/%s", cfg.Source, cfg.Path))
	}
	if wm == nil {
		wm = &Watermark{Endpoint: cfg.Path, Source: cfg.Source}
	}

	log.Info("starting endpoint sync")

	dr, err := driver.SyncEndpoint(ctx, cfg, wm, mode == ModeIncremental, func(page RawPage) error {
		return o.sink.Append(ctx, page)
	})
	if err != nil {
		return fail(logID, err)
	}

	wm.Advance(dr.Candidate, time.Now().UTC(), dr.Records)
	if err := o.watermarks.Put(ctx, *wm); err != nil {
		return fail(logID, &WatermarkPersistenceError{Endpoint: cfg.Path, Err: err})
	}

	res.Pages = dr.Pages
	res.Records = dr.Records
	res.Terminal = dr.Terminal
	res.Duration = time.Since(start)

	if o.runs != nil && logID != 0 {
		if err := o.runs.Complete(ctx, logID, dr.Pages, dr.Records); err != nil {
			log.Warn("failed to record run completion", zap.Error(err))
		}
	}

	log.Info("endpoint sync complete",
		zap.Int("pages", dr.Pages),
		zap.Int64("records", dr.Records),
		zap.Duration("elapsed", res.Duration),
	)
	return res, nil
}

func (o *Orchestrator) logFail(ctx context.Context, logID int64, err error) {
	if o.runs == nil || logID == 0 {
		return
	}
	if logErr := o.runs.Fail(ctx, logID, err.Error()); logErr != nil {
		zap.L().Warn("failed to record run failure", zap.Error(logErr))
	}
}
