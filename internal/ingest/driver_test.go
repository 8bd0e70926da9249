package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northgate-data/ingest-cli/internal/apiclient"
)

// scriptedClient returns canned pages in order and records every request.
type scriptedClient struct {
	pages    []json.RawMessage
	err      error
	requests []apiclient.PageRequest
}

func (c *scriptedClient) FetchPage(ctx context.Context, req apiclient.PageRequest) (json.RawMessage, error) {
	c.requests = append(c.requests, req)
	if c.err != nil && len(c.requests) > len(c.pages) {
		return nil, c.err
	}
	if len(c.requests) > len(c.pages) {
		return nil, errors.New("scripted client: no more pages")
	}
	return c.pages[len(c.requests)-1], nil
}

// collectionPage builds a ledger-style page with n records carrying
// sequential lastUpdated timestamps starting at base.
func collectionPage(n int, base time.Time) json.RawMessage {
	recs := make([]string, n)
	for i := 0; i < n; i++ {
		recs[i] = fmt.Sprintf(`{"id":%d,"lastUpdated":"%s"}`, i, base.Add(time.Duration(i)*time.Second).Format(time.RFC3339))
	}
	return json.RawMessage(`{"collection":[` + strings.Join(recs, ",") + `]}`)
}

// itemsPage builds a shop-style page, optionally carrying a next cursor.
func itemsPage(n int, cursor string) json.RawMessage {
	recs := make([]string, n)
	for i := 0; i < n; i++ {
		recs[i] = fmt.Sprintf(`{"sku":"s%d","updatedAt":"2024-06-01T00:00:0%dZ"}`, i, i%10)
	}
	body := `{"items":[` + strings.Join(recs, ",") + `]`
	if cursor != "" {
		body += `,"cursor":"` + cursor + `"`
	}
	return json.RawMessage(body + `}`)
}

func offsetCfg(pageSize int) EndpointConfig {
	return EndpointConfig{
		Path: "customers", Source: SourceLedger, PageSize: pageSize,
		Pagination: PaginateOffset, WatermarkType: WatermarkTimestamp,
		WatermarkAttr: "lastUpdated", Shape: PayloadShape{Kind: ShapeCollection}, Active: true,
	}
}

func cursorCfg(pageSize int) EndpointConfig {
	return EndpointConfig{
		Path: "orders", Source: SourceShop, PageSize: pageSize,
		Pagination: PaginateCursor, WatermarkType: WatermarkTimestamp,
		WatermarkAttr: "updatedAt", Shape: PayloadShape{Kind: ShapeItems}, Active: true,
	}
}

func TestSyncEndpoint_OffsetShortPageTerminates(t *testing.T) {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	client := &scriptedClient{pages: []json.RawMessage{
		collectionPage(1000, base),
		collectionPage(1000, base.Add(time.Hour)),
		collectionPage(1000, base.Add(2*time.Hour)),
		collectionPage(437, base.Add(3*time.Hour)),
	}}

	var pages []RawPage
	d := NewDriver(client)
	res, err := d.SyncEndpoint(context.Background(), offsetCfg(1000), &Watermark{}, false, func(p RawPage) error {
		pages = append(pages, p)
		return nil
	})
	require.NoError(t, err)

	assert.Len(t, client.requests, 4, "exactly one request per page, none past the short page")
	assert.Equal(t, 4, res.Pages)
	assert.Equal(t, int64(3437), res.Records)
	assert.Equal(t, TerminalShortPage, res.Terminal)

	// Page numbers advance sequentially and every page was persisted.
	require.Len(t, pages, 4)
	for i, p := range pages {
		assert.Equal(t, i, p.PageNumber)
		assert.Equal(t, i, client.requests[i].Page)
	}
	assert.Equal(t, 437, pages[3].RecordCount)
}

func TestSyncEndpoint_EmptyFirstPage(t *testing.T) {
	client := &scriptedClient{pages: []json.RawMessage{
		json.RawMessage(`{"collection":[]}`),
	}}

	d := NewDriver(client)
	res, err := d.SyncEndpoint(context.Background(), offsetCfg(1000), &Watermark{}, false, func(RawPage) error { return nil })
	require.NoError(t, err)

	assert.Len(t, client.requests, 1)
	assert.Equal(t, TerminalEmptyPage, res.Terminal)
	assert.Equal(t, int64(0), res.Records)
	assert.True(t, res.Candidate.Empty())
}

func TestSyncEndpoint_CursorFollowsUntilOmitted(t *testing.T) {
	client := &scriptedClient{pages: []json.RawMessage{
		itemsPage(250, "cur-1"),
		itemsPage(250, "cur-2"),
		itemsPage(250, ""), // full page, but no cursor
	}}

	d := NewDriver(client)
	res, err := d.SyncEndpoint(context.Background(), cursorCfg(250), &Watermark{}, false, func(RawPage) error { return nil })
	require.NoError(t, err)

	require.Len(t, client.requests, 3, "a full page without a cursor still terminates")
	assert.Equal(t, TerminalNoCursor, res.Terminal)
	assert.Equal(t, int64(750), res.Records)

	assert.Empty(t, client.requests[0].Cursor)
	assert.Equal(t, "cur-1", client.requests[1].Cursor)
	assert.Equal(t, "cur-2", client.requests[2].Cursor)
	for _, req := range client.requests {
		assert.True(t, req.UseCursor)
	}
}

func TestSyncEndpoint_CursorShortPageTerminates(t *testing.T) {
	client := &scriptedClient{pages: []json.RawMessage{
		itemsPage(250, "cur-1"),
		itemsPage(12, "cur-2"), // short page wins over the present cursor
	}}

	d := NewDriver(client)
	res, err := d.SyncEndpoint(context.Background(), cursorCfg(250), &Watermark{}, false, func(RawPage) error { return nil })
	require.NoError(t, err)

	assert.Len(t, client.requests, 2)
	assert.Equal(t, TerminalShortPage, res.Terminal)
}

func TestSyncEndpoint_IncrementalFilterPushdown(t *testing.T) {
	stored := time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)
	wm := &Watermark{Endpoint: "customers", Source: SourceLedger, LastUpdated: &stored}

	client := &scriptedClient{pages: []json.RawMessage{
		json.RawMessage(`{"collection":[]}`),
	}}

	d := NewDriver(client)
	_, err := d.SyncEndpoint(context.Background(), offsetCfg(1000), wm, true, func(RawPage) error { return nil })
	require.NoError(t, err)

	require.Len(t, client.requests, 1)
	assert.Equal(t, "lastUpdated$gt:2024-05-20T12:00:00Z", client.requests[0].Filter)
}

func TestSyncEndpoint_IncrementalNumericFilter(t *testing.T) {
	id := int64(1012)
	wm := &Watermark{Endpoint: "invoices/booked", Source: SourceLedger, LastNumericID: &id}
	cfg := EndpointConfig{
		Path: "invoices/booked", Source: SourceLedger, PageSize: 1000,
		Pagination: PaginateOffset, WatermarkType: WatermarkNumericID,
		WatermarkAttr: "bookedInvoiceNumber", Shape: PayloadShape{Kind: ShapeCollection}, Active: true,
	}

	client := &scriptedClient{pages: []json.RawMessage{
		json.RawMessage(`{"collection":[]}`),
	}}

	d := NewDriver(client)
	_, err := d.SyncEndpoint(context.Background(), cfg, wm, true, func(RawPage) error { return nil })
	require.NoError(t, err)

	assert.Equal(t, "bookedInvoiceNumber$gt:1012", client.requests[0].Filter)
}

func TestSyncEndpoint_FirstIncrementalRunHasNoFilter(t *testing.T) {
	client := &scriptedClient{pages: []json.RawMessage{
		json.RawMessage(`{"collection":[]}`),
	}}

	d := NewDriver(client)
	_, err := d.SyncEndpoint(context.Background(), offsetCfg(1000), &Watermark{}, true, func(RawPage) error { return nil })
	require.NoError(t, err)

	assert.Empty(t, client.requests[0].Filter, "no stored watermark means no filter")
}

func TestSyncEndpoint_FullModeIgnoresWatermark(t *testing.T) {
	stored := time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)
	wm := &Watermark{Endpoint: "customers", Source: SourceLedger, LastUpdated: &stored}

	client := &scriptedClient{pages: []json.RawMessage{
		json.RawMessage(`{"collection":[]}`),
	}}

	d := NewDriver(client)
	_, err := d.SyncEndpoint(context.Background(), offsetCfg(1000), wm, false, func(RawPage) error { return nil })
	require.NoError(t, err)

	assert.Empty(t, client.requests[0].Filter)
}

func TestSyncEndpoint_CandidateAccumulatesAcrossPages(t *testing.T) {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	client := &scriptedClient{pages: []json.RawMessage{
		collectionPage(2, base.Add(time.Hour)), // later values on the first page
		collectionPage(1, base),
	}}

	d := NewDriver(client)
	res, err := d.SyncEndpoint(context.Background(), offsetCfg(2), &Watermark{}, false, func(RawPage) error { return nil })
	require.NoError(t, err)

	require.NotNil(t, res.Candidate.Timestamp())
	assert.Equal(t, base.Add(time.Hour+time.Second), *res.Candidate.Timestamp())
}

func TestSyncEndpoint_FetchErrorAborts(t *testing.T) {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	client := &scriptedClient{
		pages: []json.RawMessage{collectionPage(1000, base)},
		err:   errors.New("boom"),
	}

	var persisted int
	d := NewDriver(client)
	_, err := d.SyncEndpoint(context.Background(), offsetCfg(1000), &Watermark{}, false, func(RawPage) error {
		persisted++
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, 1, persisted, "pages before the failure stay persisted")
}

func TestSyncEndpoint_PersistErrorAborts(t *testing.T) {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	client := &scriptedClient{pages: []json.RawMessage{collectionPage(10, base)}}

	d := NewDriver(client)
	_, err := d.SyncEndpoint(context.Background(), offsetCfg(1000), &Watermark{}, false, func(RawPage) error {
		return errors.New("disk full")
	})
	assert.Error(t, err)
}

func TestSyncEndpoint_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &scriptedClient{pages: []json.RawMessage{itemsPage(1, "")}}
	d := NewDriver(client)
	_, err := d.SyncEndpoint(ctx, cursorCfg(250), &Watermark{}, false, func(RawPage) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, client.requests)
}
