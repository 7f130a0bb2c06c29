package ledger

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockflow/internal/core/id"
)

func strPtr(s string) *string { return &s }

func rowsByName(rows []LocationTotal) map[string]LocationTotal {
	out := make(map[string]LocationTotal, len(rows))
	for _, r := range rows {
		out[r.LocationName] = r
	}
	return out
}

func TestApplyOperation_ReceiptCreatesRow(t *testing.T) {
	itemID := id.New()
	op := StockOperation{Kind: KindReceipt, ItemID: itemID, ItemName: "Flour", DeltaValue: 10, SourceLocation: strPtr("A"), TargetLocation: strPtr("A")}

	change := ApplyOperation(op, 2, ItemTotal{}, nil)

	assert.Equal(t, int64(10), change.Item.TotalWeight)
	assert.Equal(t, int64(2), change.Item.TotalQuantity)
	assert.Equal(t, "Flour", change.Item.ItemName)
	require.Len(t, change.Locations, 1)
	assert.Equal(t, "A", change.Locations[0].LocationName)
	assert.Equal(t, int64(10), change.Locations[0].Weight)
	assert.Equal(t, int64(2), change.Locations[0].Quantity)
	assert.Equal(t, itemID, change.Locations[0].ItemID)
}

func TestApplyOperation_WriteOffUsesMagnitude(t *testing.T) {
	itemID := id.New()
	item := ItemTotal{ItemID: itemID, TotalWeight: 30, TotalQuantity: 3}
	rows := []LocationTotal{{ItemID: itemID, LocationName: "A", Weight: 30, Quantity: 3}}
	op := StockOperation{Kind: KindWriteOff, ItemID: itemID, DeltaValue: -10, SourceLocation: strPtr("A")}

	change := ApplyOperation(op, 1, item, rows)

	assert.Equal(t, int64(20), change.Item.TotalWeight)
	assert.Equal(t, int64(2), change.Item.TotalQuantity)
	assert.Equal(t, int64(20), change.Locations[0].Weight)
	assert.Equal(t, int64(30), rows[0].Weight, "inputs must not be modified")
}

func TestApplyOperation_TransferKeepsItemTotal(t *testing.T) {
	itemID := id.New()
	item := ItemTotal{ItemID: itemID, TotalWeight: 60, TotalQuantity: 6}
	rows := []LocationTotal{{ItemID: itemID, LocationName: "A", Weight: 60, Quantity: 6}}
	op := StockOperation{Kind: KindTransfer, ItemID: itemID, DeltaValue: 20, SourceLocation: strPtr("A"), TargetLocation: strPtr("B")}

	change := ApplyOperation(op, 1, item, rows)

	assert.Equal(t, item.TotalWeight, change.Item.TotalWeight)
	assert.Equal(t, item.TotalQuantity, change.Item.TotalQuantity)
	got := rowsByName(change.Locations)
	assert.Equal(t, int64(40), got["A"].Weight)
	assert.Equal(t, int64(4), got["A"].Quantity)
	assert.Equal(t, int64(20), got["B"].Weight)
	assert.Equal(t, int64(2), got["B"].Quantity)
}

func TestApplyOperation_UpdateRescalesRows(t *testing.T) {
	itemID := id.New()
	item := ItemTotal{ItemID: itemID, TotalWeight: 100, TotalQuantity: 10}
	rows := []LocationTotal{
		{ItemID: itemID, LocationName: "A", Weight: 60, Quantity: 6},
		{ItemID: itemID, LocationName: "B", Weight: 40, Quantity: 4},
	}
	op := StockOperation{Kind: KindUpdate, ItemID: itemID, DeltaValue: 50, SourceLocation: strPtr("A")}

	change := ApplyOperation(op, 5, item, rows)

	assert.Equal(t, int64(50), change.Item.TotalWeight)
	got := rowsByName(change.Locations)
	assert.Equal(t, int64(30), got["A"].Weight)
	assert.Equal(t, int64(20), got["B"].Weight)
	assert.Equal(t, int64(3), got["A"].Quantity)
	assert.Equal(t, int64(2), got["B"].Quantity)
}

func TestApplyOperation_UpdateDistributesRemainderInLocationOrder(t *testing.T) {
	itemID := id.New()
	item := ItemTotal{ItemID: itemID, TotalWeight: 3}
	rows := []LocationTotal{
		{ItemID: itemID, LocationName: "C", Weight: 1},
		{ItemID: itemID, LocationName: "A", Weight: 1},
		{ItemID: itemID, LocationName: "B", Weight: 1},
	}
	op := StockOperation{Kind: KindUpdate, ItemID: itemID, DeltaValue: 5, SourceLocation: strPtr("C")}

	change := ApplyOperation(op, 0, item, rows)

	got := rowsByName(change.Locations)
	assert.Equal(t, int64(2), got["A"].Weight)
	assert.Equal(t, int64(2), got["B"].Weight)
	assert.Equal(t, int64(1), got["C"].Weight)
}

func TestApplyOperation_UpdateWithoutRowsCreatesSource(t *testing.T) {
	itemID := id.New()
	op := StockOperation{Kind: KindUpdate, ItemID: itemID, DeltaValue: 42, SourceLocation: strPtr("Main Storage")}

	change := ApplyOperation(op, 4, ItemTotal{ItemID: itemID}, nil)

	require.Len(t, change.Locations, 1)
	assert.Equal(t, int64(42), change.Locations[0].Weight)
	assert.Equal(t, int64(4), change.Locations[0].Quantity)
	assert.Equal(t, int64(42), change.Item.TotalWeight)
}

func TestApplyOperation_UpdateFromZeroAdjustsSourceOnly(t *testing.T) {
	itemID := id.New()
	item := ItemTotal{ItemID: itemID}
	rows := []LocationTotal{
		{ItemID: itemID, LocationName: "A", Weight: 5},
		{ItemID: itemID, LocationName: "B", Weight: -5},
	}
	op := StockOperation{Kind: KindUpdate, ItemID: itemID, DeltaValue: 10, SourceLocation: strPtr("A")}

	change := ApplyOperation(op, 0, item, rows)

	got := rowsByName(change.Locations)
	assert.Equal(t, int64(15), got["A"].Weight)
	assert.Equal(t, int64(-5), got["B"].Weight)
}

func TestApplyOperation_DeleteWholeItemZeroesEveryRow(t *testing.T) {
	itemID := id.New()
	item := ItemTotal{ItemID: itemID, TotalWeight: 100, TotalQuantity: 10}
	rows := []LocationTotal{
		{ItemID: itemID, LocationName: "A", Weight: 60, Quantity: 6},
		{ItemID: itemID, LocationName: "B", Weight: 40, Quantity: 4},
	}
	op := StockOperation{Kind: KindDelete, ItemID: itemID, DeltaValue: -100, SourceLocation: strPtr("A")}

	change := ApplyOperation(op, 0, item, rows)

	assert.Zero(t, change.Item.TotalWeight)
	assert.Zero(t, change.Item.TotalQuantity)
	require.Len(t, change.Locations, 2)
	for _, r := range change.Locations {
		assert.Zero(t, r.Weight, r.LocationName)
		assert.Zero(t, r.Quantity, r.LocationName)
	}
}

func TestApplyOperation_PartialDeleteTouchesSource(t *testing.T) {
	itemID := id.New()
	item := ItemTotal{ItemID: itemID, TotalWeight: 100}
	rows := []LocationTotal{
		{ItemID: itemID, LocationName: "A", Weight: 60},
		{ItemID: itemID, LocationName: "B", Weight: 40},
	}
	op := StockOperation{Kind: KindDelete, ItemID: itemID, DeltaValue: -10, SourceLocation: strPtr("A")}

	change := ApplyOperation(op, 0, item, rows)

	assert.Equal(t, int64(90), change.Item.TotalWeight)
	require.Len(t, change.Locations, 1)
	assert.Equal(t, int64(50), change.Locations[0].Weight)
}

// Rows must sum to the item total after any sequence of operations.
func TestApplyOperation_RandomSequenceKeepsRowsInSync(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	locations := []string{"A", "B", "C", "D"}
	itemID := id.New()

	item := ItemTotal{ItemID: itemID}
	state := map[string]LocationTotal{}

	snapshot := func() []LocationTotal {
		out := make([]LocationTotal, 0, len(state))
		for _, r := range state {
			out = append(out, r)
		}
		return out
	}

	kinds := []OperationKind{KindCreate, KindReceipt, KindWriteOff, KindTransfer, KindUpdate, KindDelete}
	for i := 0; i < 2000; i++ {
		kind := kinds[rng.Intn(len(kinds))]
		src := locations[rng.Intn(len(locations))]
		op := StockOperation{Kind: kind, ItemID: itemID, SourceLocation: strPtr(src), TargetLocation: strPtr(src)}
		pieces := int64(rng.Intn(20))

		switch kind {
		case KindCreate, KindReceipt:
			op.DeltaValue = int64(rng.Intn(500))
		case KindWriteOff:
			op.DeltaValue = -int64(rng.Intn(200))
		case KindTransfer:
			dst := locations[(rng.Intn(len(locations)-1)+1+indexOf(locations, src))%len(locations)]
			op.TargetLocation = strPtr(dst)
			op.DeltaValue = int64(rng.Intn(100) + 1)
		case KindUpdate:
			op.DeltaValue = int64(rng.Intn(1000))
		case KindDelete:
			if rng.Intn(2) == 0 {
				op.DeltaValue = -item.TotalWeight
				pieces = 0
			} else {
				op.DeltaValue = -int64(rng.Intn(50))
			}
		}

		change := ApplyOperation(op, pieces, item, snapshot())
		item = change.Item
		for _, r := range change.Locations {
			state[r.LocationName] = r
		}

		var weight, quantity int64
		for _, r := range state {
			weight += r.Weight
			quantity += r.Quantity
		}
		require.Equal(t, item.TotalWeight, weight, "weight out of sync after step %d (%s)", i, kind)
		require.Equal(t, item.TotalQuantity, quantity, "quantity out of sync after step %d (%s)", i, kind)
	}
}

func indexOf(list []string, v string) int {
	for i, s := range list {
		if s == v {
			return i
		}
	}
	return -1
}

func TestSpread(t *testing.T) {
	assert.Equal(t, []int64{2, 1, 1}, spread(4, 3))
	assert.Equal(t, []int64{-1, -1, 0}, spread(-2, 3))
	assert.Equal(t, []int64{0, 0}, spread(0, 2))
}
