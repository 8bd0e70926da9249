package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/northgate-data/ingest-cli/internal/apiclient"
)

// TerminalReason records why pagination stopped.
type TerminalReason string

const (
	// TerminalShortPage: the page held fewer records than the page size.
	// This heuristic assumes the API never returns an exactly-full final
	// page; a full final page costs one extra (empty) request.
	TerminalShortPage TerminalReason = "short_page"
	// TerminalEmptyPage: the page held no records.
	TerminalEmptyPage TerminalReason = "empty_page"
	// TerminalNoCursor: a cursor-style response carried no next cursor,
	// regardless of record count.
	TerminalNoCursor TerminalReason = "no_cursor"
)

// PageFunc receives each fetched page. The orchestrator supplies a PageFunc
// that persists the page; the driver itself performs no persistence.
type PageFunc func(page RawPage) error

// DriveResult summarizes one endpoint's pagination pass.
type DriveResult struct {
	Pages     int
	Records   int64
	Terminal  TerminalReason
	Candidate *Candidate
}

// Driver walks an endpoint's pages and accumulates a watermark candidate.
type Driver struct {
	client apiclient.Client
}

// NewDriver creates a pagination driver over the given API client.
func NewDriver(client apiclient.Client) *Driver {
	return &Driver{client: client}
}

// SyncEndpoint fetches every page of one endpoint, handing each page to
// onPage before requesting the next, so a mid-run crash loses at most the
// in-flight page. When incremental is true the stored watermark is pushed
// down as a server-side filter. Any failure aborts this endpoint only; the
// partially accumulated candidate is discarded by the caller.
func (d *Driver) SyncEndpoint(ctx context.Context, cfg EndpointConfig, wm *Watermark, incremental bool, onPage PageFunc) (*DriveResult, error) {
	log := zap.L().With(
		zap.String("source", string(cfg.Source)),
		zap.String("endpoint", cfg.Path),
	)

	filter := ""
	if incremental {
		filter = watermarkFilter(cfg, wm)
	}

	result := &DriveResult{Candidate: &Candidate{}}
	cursor := ""

	for pageNum := 0; ; pageNum++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		req := apiclient.PageRequest{
			Endpoint:  cfg.Path,
			PageSize:  cfg.PageSize,
			Filter:    filter,
			UseCursor: cfg.Pagination == PaginateCursor,
			Page:      pageNum,
			Cursor:    cursor,
		}

		log.Debug("fetching page", zap.Int("page", pageNum), zap.String("filter", filter))

		body, err := d.client.FetchPage(ctx, req)
		if err != nil {
			return nil, eris.Wrapf(err, "driver: %s/%s page %d", cfg.Source, cfg.Path, pageNum)
		}

		records, err := ExtractRecords(body, cfg.Shape)
		if err != nil {
			return nil, eris.Wrapf(err, "driver: %s/%s page %d", cfg.Source, cfg.Path, pageNum)
		}

		page := RawPage{
			IngestedAt:  time.Now().UTC(),
			Source:      cfg.Source,
			Endpoint:    cfg.Path,
			PageNumber:  pageNum,
			RecordCount: len(records),
			Payload:     body,
		}
		if err := onPage(page); err != nil {
			return nil, eris.Wrapf(err, "driver: persist %s/%s page %d", cfg.Source, cfg.Path, pageNum)
		}

		for _, rec := range records {
			result.Candidate.Observe(rec, cfg)
		}
		result.Pages++
		result.Records += int64(len(records))

		if len(records) == 0 {
			result.Terminal = TerminalEmptyPage
			break
		}
		if len(records) < cfg.PageSize {
			result.Terminal = TerminalShortPage
			break
		}
		if cfg.Pagination == PaginateCursor {
			next, ok := NextCursor(body)
			if !ok {
				result.Terminal = TerminalNoCursor
				break
			}
			cursor = next
		}
	}

	log.Debug("pagination complete",
		zap.Int("pages", result.Pages),
		zap.Int64("records", result.Records),
		zap.String("terminal", string(result.Terminal)),
	)
	return result, nil
}

// watermarkFilter converts a stored watermark into a server-side filter
// expression so only new records are fetched. A strictly-greater comparison
// keeps catch-up runs from re-fetching the boundary record.
func watermarkFilter(cfg EndpointConfig, wm *Watermark) string {
	if wm == nil {
		return ""
	}
	switch cfg.WatermarkType {
	case WatermarkTimestamp:
		if wm.LastUpdated == nil {
			return ""
		}
		return fmt.Sprintf("%s$gt:%s", cfg.WatermarkAttr, wm.LastUpdated.UTC().Format(time.RFC3339))
	case WatermarkNumericID:
		if wm.LastNumericID == nil {
			return ""
		}
		return fmt.Sprintf("%s$gt:%d", cfg.WatermarkAttr, *wm.LastNumericID)
	default:
		return ""
	}
}
