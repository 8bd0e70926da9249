package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSource(t *testing.T) {
	s, err := ParseSource("ledger")
	assert.NoError(t, err)
	assert.Equal(t, SourceLedger, s)

	s, err = ParseSource("shop")
	assert.NoError(t, err)
	assert.Equal(t, SourceShop, s)

	_, err = ParseSource("warehouse")
	assert.Error(t, err)
	_, err = ParseSource("")
	assert.Error(t, err)
}

func TestPayloadShape_ArrayKey(t *testing.T) {
	assert.Equal(t, "collection", PayloadShape{Kind: ShapeCollection}.ArrayKey())
	assert.Equal(t, "items", PayloadShape{Kind: ShapeItems}.ArrayKey())
	assert.Equal(t, "levels", PayloadShape{Kind: ShapeNamed, Name: "levels"}.ArrayKey())
}

func TestEndpointConfig_Key(t *testing.T) {
	c := EndpointConfig{Path: "invoices/booked", Source: SourceLedger}
	assert.Equal(t, "ledger/invoices/booked", c.Key())
}

func TestEndpointConfig_Validate(t *testing.T) {
	valid := EndpointConfig{
		Path: "customers", Source: SourceLedger, PageSize: 1000,
		Pagination: PaginateOffset, WatermarkType: WatermarkTimestamp,
		WatermarkAttr: "lastUpdated", Shape: PayloadShape{Kind: ShapeCollection},
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*EndpointConfig)
	}{
		{"empty path", func(c *EndpointConfig) { c.Path = "" }},
		{"unknown source", func(c *EndpointConfig) { c.Source = "crm" }},
		{"page size zero", func(c *EndpointConfig) { c.PageSize = 0 }},
		{"page size too large", func(c *EndpointConfig) { c.PageSize = 10001 }},
		{"unknown pagination", func(c *EndpointConfig) { c.Pagination = "scroll" }},
		{"watermark without attr", func(c *EndpointConfig) { c.WatermarkAttr = "" }},
		{"named shape without name", func(c *EndpointConfig) { c.Shape = PayloadShape{Kind: ShapeNamed} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestEndpointConfig_ValidatePageSizeBounds(t *testing.T) {
	c := EndpointConfig{
		Path: "customers", Source: SourceLedger,
		Pagination: PaginateOffset, WatermarkType: WatermarkNone,
		Shape: PayloadShape{Kind: ShapeCollection},
	}

	c.PageSize = 1
	assert.NoError(t, c.Validate())
	c.PageSize = 10000
	assert.NoError(t, c.Validate())
}
