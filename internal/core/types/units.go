// Package types provides unit conversion for the ledger's kg-equivalent base unit.
package types

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Packaging units. Each coefficient is the number of base pieces per unit.
const (
	UnitPiece  = "piece"
	UnitPack   = "pack"
	UnitCase   = "case"
	UnitPallet = "pallet"
)

// Weight units.
const (
	UnitKilogram = "kg"
	UnitGram     = "g"
	UnitTonne    = "t"
)

// BaseUnit is the unit every deltaValue is expressed in.
const BaseUnit = UnitKilogram

var packCoefficients = map[string]int64{
	UnitPiece:  1,
	UnitPack:   25,
	UnitCase:   125,
	UnitPallet: 625,
}

var weightCoefficients = map[string]decimal.Decimal{
	UnitKilogram: decimal.NewFromInt(1),
	UnitGram:     decimal.New(1, -3),
	UnitTonne:    decimal.NewFromInt(1000),
}

// PackCoefficient returns base pieces per packaging unit.
func PackCoefficient(unit string) (int64, error) {
	c, ok := packCoefficients[normalize(unit)]
	if !ok {
		return 0, fmt.Errorf("unknown quantity unit %q", unit)
	}
	return c, nil
}

// WeightCoefficient returns kilograms per weight unit. An empty unit means kg.
func WeightCoefficient(unit string) (decimal.Decimal, error) {
	u := normalize(unit)
	if u == "" {
		u = UnitKilogram
	}
	c, ok := weightCoefficients[u]
	if !ok {
		return decimal.Zero, fmt.Errorf("unknown weight unit %q", unit)
	}
	return c, nil
}

// KgEquivalent computes quantity × pack coefficient × weight × weight
// coefficient, truncated toward zero to whole kilograms.
func KgEquivalent(quantity decimal.Decimal, quantityUnit string, weight decimal.Decimal, weightUnit string) (int64, error) {
	pack, err := PackCoefficient(quantityUnit)
	if err != nil {
		return 0, err
	}
	wc, err := WeightCoefficient(weightUnit)
	if err != nil {
		return 0, err
	}
	return quantity.Mul(decimal.NewFromInt(pack)).Mul(weight).Mul(wc).IntPart(), nil
}

// BasePieces converts a packaged quantity into base pieces, truncated.
func BasePieces(quantity decimal.Decimal, quantityUnit string) (int64, error) {
	pack, err := PackCoefficient(quantityUnit)
	if err != nil {
		return 0, err
	}
	return quantity.Mul(decimal.NewFromInt(pack)).IntPart(), nil
}

// Percent returns part/whole × 100 rounded to two decimals. A non-positive
// whole yields zero.
func Percent(part, whole int64) decimal.Decimal {
	if whole <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(part).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(whole)).
		Round(2)
}

func normalize(unit string) string {
	return strings.ToLower(strings.TrimSpace(unit))
}
