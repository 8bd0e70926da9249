package ingest

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Registry holds the set of configured endpoints. Operators toggle Active or
// adjust page sizes through the overrides file without code changes.
type Registry struct {
	endpoints map[string]EndpointConfig // keyed by EndpointConfig.Key()
}

// NewRegistry creates a registry populated with the built-in endpoints.
func NewRegistry() *Registry {
	r := &Registry{endpoints: make(map[string]EndpointConfig)}
	for _, c := range defaultEndpoints() {
		r.endpoints[c.Key()] = c
	}
	return r
}

// defaultEndpoints returns the built-in endpoint set for both sources.
func defaultEndpoints() []EndpointConfig {
	return []EndpointConfig{
		// Ledger (ERP): offset-paginated, records under "collection".
		{
			Path: "customers", Source: SourceLedger, PageSize: 1000,
			Pagination: PaginateOffset, WatermarkType: WatermarkTimestamp,
			WatermarkAttr: "lastUpdated", Shape: PayloadShape{Kind: ShapeCollection}, Active: true,
		},
		{
			Path: "products", Source: SourceLedger, PageSize: 1000,
			Pagination: PaginateOffset, WatermarkType: WatermarkTimestamp,
			WatermarkAttr: "lastUpdated", Shape: PayloadShape{Kind: ShapeCollection}, Active: true,
		},
		{
			Path: "suppliers", Source: SourceLedger, PageSize: 1000,
			Pagination: PaginateOffset, WatermarkType: WatermarkTimestamp,
			WatermarkAttr: "lastUpdated", Shape: PayloadShape{Kind: ShapeCollection}, Active: true,
		},
		{
			Path: "invoices/booked", Source: SourceLedger, PageSize: 1000,
			Pagination: PaginateOffset, WatermarkType: WatermarkNumericID,
			WatermarkAttr: "bookedInvoiceNumber", Shape: PayloadShape{Kind: ShapeCollection}, Active: true,
		},
		// Chart of accounts is small and has no incremental field; it is
		// refreshed by full syncs only.
		{
			Path: "accounts", Source: SourceLedger, PageSize: 1000,
			Pagination: PaginateOffset, WatermarkType: WatermarkNone,
			Shape: PayloadShape{Kind: ShapeCollection}, Active: true,
		},

		// Shop (e-commerce): cursor-paginated, records under "items".
		{
			Path: "orders", Source: SourceShop, PageSize: 250,
			Pagination: PaginateCursor, WatermarkType: WatermarkTimestamp,
			WatermarkAttr: "updatedAt", Shape: PayloadShape{Kind: ShapeItems}, Active: true,
		},
		{
			Path: "customers", Source: SourceShop, PageSize: 250,
			Pagination: PaginateCursor, WatermarkType: WatermarkTimestamp,
			WatermarkAttr: "updatedAt", Shape: PayloadShape{Kind: ShapeItems}, Active: true,
		},
		// The product catalog is refreshed in full on a schedule.
		{
			Path: "products", Source: SourceShop, PageSize: 250,
			Pagination: PaginateCursor, WatermarkType: WatermarkNone,
			Shape: PayloadShape{Kind: ShapeItems}, Active: true,
		},
		{
			Path: "inventory/levels", Source: SourceShop, PageSize: 250,
			Pagination: PaginateCursor, WatermarkType: WatermarkNone,
			Shape: PayloadShape{Kind: ShapeNamed, Name: "levels"}, Active: true,
		},
	}
}

// LoadFile applies endpoint overrides from a YAML file. Entries matching an
// existing (path, source) replace the built-in config; new entries are added.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "registry: read endpoints file %s", path)
	}
	return r.loadYAML(data)
}

func (r *Registry) loadYAML(data []byte) error {
	var doc struct {
		Endpoints []EndpointConfig `yaml:"endpoints"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return eris.Wrap(err, "registry: parse endpoints file")
	}

	for _, c := range doc.Endpoints {
		if c.PageSize == 0 {
			c.PageSize = 1000
		}
		if err := c.Validate(); err != nil {
			return eris.Wrap(err, "registry: invalid endpoint override")
		}
		r.endpoints[c.Key()] = c
	}
	return nil
}

// Get returns an endpoint config by source and path.
func (r *Registry) Get(source Source, path string) (EndpointConfig, error) {
	c, ok := r.endpoints[string(source)+"/"+path]
	if !ok {
		return EndpointConfig{}, eris.Errorf("registry: unknown endpoint %s/%s", source, path)
	}
	return c, nil
}

// Select returns the active endpoints for a source in stable (path) order.
// If paths is non-empty, only those endpoints are returned; naming an unknown
// or inactive endpoint is an error so typos do not silently sync nothing.
func (r *Registry) Select(source Source, paths []string) ([]EndpointConfig, error) {
	if len(paths) > 0 {
		var result []EndpointConfig
		for _, p := range paths {
			c, err := r.Get(source, p)
			if err != nil {
				return nil, err
			}
			if !c.Active {
				return nil, eris.Errorf("registry: endpoint %s/%s is inactive", source, p)
			}
			result = append(result, c)
		}
		sortEndpoints(result)
		return result, nil
	}

	var result []EndpointConfig
	for _, c := range r.endpoints {
		if c.Source == source && c.Active {
			result = append(result, c)
		}
	}
	sortEndpoints(result)
	return result, nil
}

// All returns every configured endpoint, active or not, in stable order.
func (r *Registry) All() []EndpointConfig {
	result := make([]EndpointConfig, 0, len(r.endpoints))
	for _, c := range r.endpoints {
		result = append(result, c)
	}
	sortEndpoints(result)
	return result
}
