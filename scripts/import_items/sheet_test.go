package main

import (
	"testing"

	"github.com/mroshb/shop_economy/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRows(t *testing.T) {
	rows := [][]string{
		columns,
		{"bow", "Bow", "A short bow", "weapon", "150", "", "3", "20", "2", "yes", "", "5"},
		{"gem", "Gem", "", "cosmetic", "۵۰۰", "100", "", "", "", "1", "no"},
		{"", "", ""},
		{"broken", "Broken", "", "misc", "cheap"},
		{"nameless"},
	}

	items, errs := parseRows(rows)
	require.Len(t, items, 2)
	assert.Len(t, errs, 2)

	bow := items[0]
	assert.Equal(t, "bow", bow.ID)
	assert.Equal(t, int64(150), bow.Price)
	assert.Nil(t, bow.SellPrice)
	require.NotNil(t, bow.MaxQuantity)
	assert.Equal(t, int64(3), *bow.MaxQuantity)
	assert.Equal(t, int64(20), bow.CurrentStock)
	assert.True(t, bow.CanSell)
	assert.True(t, bow.IsActive, "active defaults to true")
	assert.Equal(t, 5, bow.SortOrder)

	gem := items[1]
	assert.Equal(t, int64(500), gem.Price)
	assert.Equal(t, models.UnlimitedStock, gem.CurrentStock)
	assert.False(t, gem.IsActive)

	assert.Contains(t, errs[0].Error(), "row 5")
	assert.Contains(t, errs[1].Error(), "row 6")
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		raw     string
		want    bool
		wantErr bool
	}{
		{raw: "", want: true},
		{raw: "Yes", want: true},
		{raw: "0", want: false},
		{raw: "maybe", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseBool(tt.raw, true)
		if tt.wantErr {
			assert.Error(t, err, tt.raw)
			continue
		}
		assert.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}
