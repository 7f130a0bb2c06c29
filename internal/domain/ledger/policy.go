package ledger

import (
	"math/big"
	"sort"

	"stockflow/internal/core/id"
)

// Change is the aggregate state produced by one operation: the new item
// total and every location row whose values were touched, in location order.
type Change struct {
	Item      ItemTotal
	Locations []LocationTotal
}

// ApplyOperation computes the aggregate effect of op on the current item
// total and its location rows. It is a pure function: inputs are not
// modified. pieces is the operation's quantity in base pieces.
//
//	create, receipt    item += |Δ|   source += |Δ|
//	write_off, delete  item -= |Δ|   source -= |Δ|
//	transfer           item =        source -= Δ, target += Δ
//	update             item := Δ     rows rescaled by Δ/old
func ApplyOperation(op StockOperation, pieces int64, item ItemTotal, rows []LocationTotal) Change {
	state := newRowSet(op, rows)
	item.ItemID = op.ItemID
	if op.ItemName != "" {
		item.ItemName = op.ItemName
	}
	amount := abs(op.DeltaValue)

	switch op.Kind {
	case KindCreate, KindReceipt:
		item.TotalWeight += amount
		item.TotalQuantity += pieces
		src := state.row(op.SourceLocation)
		src.Weight += amount
		src.Quantity += pieces

	case KindWriteOff:
		item.TotalWeight -= amount
		item.TotalQuantity -= pieces
		src := state.row(op.SourceLocation)
		src.Weight -= amount
		src.Quantity -= pieces

	case KindDelete:
		if amount == item.TotalWeight {
			// Deleting the whole item clears it everywhere, not only at source.
			item.TotalWeight = 0
			item.TotalQuantity = 0
			for _, r := range state.all() {
				r.Weight = 0
				r.Quantity = 0
			}
			break
		}
		item.TotalWeight -= amount
		item.TotalQuantity -= pieces
		src := state.row(op.SourceLocation)
		src.Weight -= amount
		src.Quantity -= pieces

	case KindTransfer:
		src := state.row(op.SourceLocation)
		dst := state.row(op.TargetLocation)
		moved := movedPieces(src.Quantity, src.Weight, op.DeltaValue)
		src.Weight -= op.DeltaValue
		src.Quantity -= moved
		dst.Weight += op.DeltaValue
		dst.Quantity += moved

	case KindUpdate:
		oldWeight, oldQuantity := item.TotalWeight, item.TotalQuantity
		item.TotalWeight = op.DeltaValue
		item.TotalQuantity = pieces
		state.rescale(op.SourceLocation, oldWeight, op.DeltaValue,
			func(r *LocationTotal) *int64 { return &r.Weight })
		state.rescale(op.SourceLocation, oldQuantity, pieces,
			func(r *LocationTotal) *int64 { return &r.Quantity })
	}

	return Change{Item: item, Locations: state.touchedRows()}
}

type rowSet struct {
	itemID   id.ID
	itemName string
	rows     map[string]*LocationTotal
	touched  map[string]bool
}

func newRowSet(op StockOperation, rows []LocationTotal) *rowSet {
	s := &rowSet{
		itemID:   op.ItemID,
		itemName: op.ItemName,
		rows:     make(map[string]*LocationTotal, len(rows)),
		touched:  make(map[string]bool),
	}
	for _, r := range rows {
		r := r
		s.rows[r.LocationName] = &r
	}
	return s
}

// row returns the row for name, creating it lazily.
func (s *rowSet) row(name *string) *LocationTotal {
	if name == nil {
		return &LocationTotal{}
	}
	r, ok := s.rows[*name]
	if !ok {
		r = &LocationTotal{ItemID: s.itemID, ItemName: s.itemName, LocationName: *name}
		s.rows[*name] = r
	}
	if s.itemName != "" {
		r.ItemName = s.itemName
	}
	s.touched[*name] = true
	return r
}

// all returns every known row in location-name order and marks them touched.
func (s *rowSet) all() []*LocationTotal {
	names := make([]string, 0, len(s.rows))
	for name := range s.rows {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*LocationTotal, 0, len(names))
	for _, name := range names {
		n := name
		out = append(out, s.row(&n))
	}
	return out
}

// rescale moves the field selected by pick from old to new across all rows.
//
// With old != 0 every row is scaled by new/old, truncated, and the leftover
// units are handed out one per row in location order so the rows sum to new.
// With no rows the source row is created holding new. With old == 0 and rows
// present, only the source row changes: it absorbs new minus the other rows.
func (s *rowSet) rescale(source *string, old, next int64, pick func(*LocationTotal) *int64) {
	rows := s.all()
	if len(rows) == 0 {
		if source != nil {
			*pick(s.row(source)) = next
		}
		return
	}

	if old == 0 {
		anchor := rows[0]
		if source != nil {
			anchor = s.row(source)
		}
		var others int64
		for _, r := range s.all() {
			if r != anchor {
				others += *pick(r)
			}
		}
		*pick(anchor) = next - others
		return
	}

	var sum int64
	for _, r := range rows {
		v := pick(r)
		*v = mulDiv(*v, next, old)
		sum += *v
	}

	for i, extra := range spread(next-sum, len(rows)) {
		*pick(rows[i]) += extra
	}
}

// spread divides v into n parts whose magnitudes differ by at most one,
// larger parts first.
func spread(v int64, n int) []int64 {
	sign := int64(1)
	if v < 0 {
		sign, v = -1, -v
	}
	parts := make([]int64, n)
	base, rem := v/int64(n), v%int64(n)
	for i := range parts {
		parts[i] = base
		if int64(i) < rem {
			parts[i]++
		}
		parts[i] *= sign
	}
	return parts
}

func (s *rowSet) touchedRows() []LocationTotal {
	names := make([]string, 0, len(s.touched))
	for name := range s.touched {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]LocationTotal, 0, len(names))
	for _, name := range names {
		out = append(out, *s.rows[name])
	}
	return out
}

// movedPieces is the share of quantity travelling with delta kg out of a
// row holding weight kg, clamped to what the row holds.
func movedPieces(quantity, weight, delta int64) int64 {
	if weight <= 0 || quantity <= 0 || delta <= 0 {
		return 0
	}
	if delta >= weight {
		return quantity
	}
	return mulDiv(quantity, delta, weight)
}

// mulDiv returns a*b/c truncated toward zero without intermediate overflow.
func mulDiv(a, b, c int64) int64 {
	r := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	r.Quo(r, big.NewInt(c))
	return r.Int64()
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
