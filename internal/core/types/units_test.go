package types

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKgEquivalent(t *testing.T) {
	tests := []struct {
		name         string
		quantity     string
		quantityUnit string
		weight       string
		weightUnit   string
		want         int64
	}{
		{"pieces in kg", "3", UnitPiece, "2", UnitKilogram, 6},
		{"packs", "2", UnitPack, "1.5", UnitKilogram, 75},
		{"cases", "1", UnitCase, "2", "", 250},
		{"pallet", "1", UnitPallet, "1", UnitKilogram, 625},
		{"grams truncate", "3", UnitPiece, "500", UnitGram, 1},
		{"tonnes", "2", UnitPiece, "0.5", UnitTonne, 1000},
		{"case insensitive", "1", "Pack", "1", "KG", 25},
		{"negative truncates toward zero", "-3", UnitPiece, "0.5", UnitKilogram, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := KgEquivalent(decimal.RequireFromString(tt.quantity), tt.quantityUnit,
				decimal.RequireFromString(tt.weight), tt.weightUnit)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKgEquivalent_UnknownUnits(t *testing.T) {
	_, err := KgEquivalent(decimal.NewFromInt(1), "crate", decimal.NewFromInt(1), UnitKilogram)
	assert.ErrorContains(t, err, "unknown quantity unit")

	_, err = KgEquivalent(decimal.NewFromInt(1), UnitPiece, decimal.NewFromInt(1), "lb")
	assert.ErrorContains(t, err, "unknown weight unit")
}

func TestBasePieces(t *testing.T) {
	got, err := BasePieces(decimal.RequireFromString("2.5"), UnitCase)
	require.NoError(t, err)
	assert.Equal(t, int64(312), got)
}

func TestPercent(t *testing.T) {
	assert.True(t, decimal.RequireFromString("33.33").Equal(Percent(1, 3)))
	assert.True(t, decimal.NewFromInt(100).Equal(Percent(50, 50)))
	assert.True(t, decimal.Zero.Equal(Percent(10, 0)))
}
