package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry_DefaultsAreValid(t *testing.T) {
	reg := NewRegistry()
	for _, c := range reg.All() {
		assert.NoError(t, c.Validate(), "endpoint %s", c.Key())
	}
}

func TestRegistry_Get(t *testing.T) {
	reg := NewRegistry()

	c, err := reg.Get(SourceLedger, "invoices/booked")
	require.NoError(t, err)
	assert.Equal(t, WatermarkNumericID, c.WatermarkType)
	assert.Equal(t, "bookedInvoiceNumber", c.WatermarkAttr)

	_, err = reg.Get(SourceShop, "invoices/booked")
	assert.Error(t, err, "path lookup is per source")
}

func TestRegistry_SelectAllActive(t *testing.T) {
	reg := NewRegistry()

	ledger, err := reg.Select(SourceLedger, nil)
	require.NoError(t, err)
	require.NotEmpty(t, ledger)
	for i := 1; i < len(ledger); i++ {
		assert.Less(t, ledger[i-1].Path, ledger[i].Path, "selection must be in stable order")
	}
	for _, c := range ledger {
		assert.Equal(t, SourceLedger, c.Source)
		assert.True(t, c.Active)
	}
}

func TestRegistry_SelectByPath(t *testing.T) {
	reg := NewRegistry()

	result, err := reg.Select(SourceLedger, []string{"customers", "accounts"})
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, "accounts", result[0].Path)
	assert.Equal(t, "customers", result[1].Path)
}

func TestRegistry_SelectUnknownPath(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Select(SourceLedger, []string{"customers", "nonexistent"})
	assert.Error(t, err, "typos must not silently sync nothing")
}

func TestRegistry_SelectInactive(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.loadYAML([]byte(`
endpoints:
  - path: customers
    source: ledger
    page_size: 1000
    pagination: offset
    watermark_type: none
    shape:
      kind: collection
    active: false
`)))

	_, err := reg.Select(SourceLedger, []string{"customers"})
	assert.Error(t, err)

	all, err := reg.Select(SourceLedger, nil)
	require.NoError(t, err)
	for _, c := range all {
		assert.NotEqual(t, "customers", c.Path, "inactive endpoints are excluded")
	}
}

func TestRegistry_LoadYAMLOverridesAndAdds(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.loadYAML([]byte(`
endpoints:
  - path: customers
    source: ledger
    page_size: 500
    pagination: offset
    watermark_type: last_updated_timestamp
    watermark_attr: lastUpdated
    shape:
      kind: collection
    active: true
  - path: payments
    source: shop
    pagination: cursor
    watermark_type: last_updated_timestamp
    watermark_attr: updatedAt
    shape:
      kind: items
    active: true
`)))

	c, err := reg.Get(SourceLedger, "customers")
	require.NoError(t, err)
	assert.Equal(t, 500, c.PageSize)

	p, err := reg.Get(SourceShop, "payments")
	require.NoError(t, err)
	assert.Equal(t, 1000, p.PageSize, "omitted page size defaults")
	assert.Equal(t, PaginateCursor, p.Pagination)
}

func TestRegistry_LoadYAMLRejectsInvalid(t *testing.T) {
	reg := NewRegistry()
	err := reg.loadYAML([]byte(`
endpoints:
  - path: customers
    source: ledger
    page_size: 99999
    pagination: offset
    watermark_type: none
    shape:
      kind: collection
`))
	assert.Error(t, err)
}
