// Package ingest implements incremental, watermark-tracked ingestion of
// paginated REST sources into the raw layer of the warehouse.
package ingest

import (
	"sort"

	"github.com/rotisserie/eris"
)

// Source identifies which upstream API an endpoint belongs to.
type Source string

const (
	// SourceLedger is the accounting/ERP REST API (offset pagination).
	SourceLedger Source = "ledger"
	// SourceShop is the e-commerce API (cursor pagination).
	SourceShop Source = "shop"
)

// ParseSource converts a string into a Source.
func ParseSource(s string) (Source, error) {
	switch s {
	case "ledger":
		return SourceLedger, nil
	case "shop":
		return SourceShop, nil
	default:
		return "", eris.Errorf("unknown source: %q (valid: ledger, shop)", s)
	}
}

// PaginationStyle selects the wire protocol used to walk pages.
type PaginationStyle string

const (
	// PaginateOffset fetches page N at offset N * page_size.
	PaginateOffset PaginationStyle = "offset"
	// PaginateCursor follows an opaque cursor token returned in each response.
	PaginateCursor PaginationStyle = "cursor"
)

// WatermarkField selects which record field drives incremental sync.
type WatermarkField string

const (
	// WatermarkNone means the endpoint has no incremental field and is
	// always fetched from the beginning.
	WatermarkNone WatermarkField = "none"
	// WatermarkTimestamp tracks the maximum of a timestamp field.
	WatermarkTimestamp WatermarkField = "last_updated_timestamp"
	// WatermarkNumericID tracks the maximum of a numeric ID field.
	WatermarkNumericID WatermarkField = "last_numeric_id"
)

// ShapeKind tags the top-level array layout of a payload.
type ShapeKind string

const (
	// ShapeCollection is the ledger API layout: {"collection": [...]}.
	ShapeCollection ShapeKind = "collection"
	// ShapeItems is the shop API layout: {"items": [...]}.
	ShapeItems ShapeKind = "items"
	// ShapeNamed is a payload whose array lives under an endpoint-specific key.
	ShapeNamed ShapeKind = "named"
)

// PayloadShape describes where the record array lives inside a page payload.
// It is resolved once per endpoint config, never re-detected per page.
type PayloadShape struct {
	Kind ShapeKind `yaml:"kind"`
	// Name is the array key for ShapeNamed; ignored otherwise.
	Name string `yaml:"name,omitempty"`
}

// ArrayKey returns the JSON key holding the record array.
func (s PayloadShape) ArrayKey() string {
	switch s.Kind {
	case ShapeCollection:
		return "collection"
	case ShapeItems:
		return "items"
	default:
		return s.Name
	}
}

// EndpointConfig describes one ingestible resource. (endpoint_path, source)
// is the unique key. Configs are read-only to the sync engine.
type EndpointConfig struct {
	Path          string          `yaml:"path"`
	Source        Source          `yaml:"source"`
	PageSize      int             `yaml:"page_size"`
	Pagination    PaginationStyle `yaml:"pagination"`
	WatermarkType WatermarkField  `yaml:"watermark_type"`
	// WatermarkAttr is the field inside each business record that carries
	// the watermark value (e.g. "lastUpdated", "bookedInvoiceNumber").
	WatermarkAttr string       `yaml:"watermark_attr,omitempty"`
	Shape         PayloadShape `yaml:"shape"`
	Active        bool         `yaml:"active"`
}

// Key returns the composite registry key.
func (c EndpointConfig) Key() string {
	return string(c.Source) + "/" + c.Path
}

// Validate checks an endpoint config for internal consistency.
func (c EndpointConfig) Validate() error {
	if c.Path == "" {
		return eris.New("endpoint: empty path")
	}
	if c.Source != SourceLedger && c.Source != SourceShop {
		return eris.Errorf("endpoint %s: unknown source %q", c.Path, c.Source)
	}
	if c.PageSize < 1 || c.PageSize > 10000 {
		return eris.Errorf("endpoint %s: page size %d out of range [1, 10000]", c.Path, c.PageSize)
	}
	if c.Pagination != PaginateOffset && c.Pagination != PaginateCursor {
		return eris.Errorf("endpoint %s: unknown pagination style %q", c.Path, c.Pagination)
	}
	if c.WatermarkType != WatermarkNone && c.WatermarkAttr == "" {
		return eris.Errorf("endpoint %s: watermark type %s requires watermark_attr", c.Path, c.WatermarkType)
	}
	if c.Shape.Kind == ShapeNamed && c.Shape.Name == "" {
		return eris.Errorf("endpoint %s: named payload shape requires a name", c.Path)
	}
	return nil
}

// sortEndpoints orders configs by source then path for stable iteration.
func sortEndpoints(configs []EndpointConfig) {
	sort.Slice(configs, func(i, j int) bool {
		if configs[i].Source != configs[j].Source {
			return configs[i].Source < configs[j].Source
		}
		return configs[i].Path < configs[j].Path
	})
}
