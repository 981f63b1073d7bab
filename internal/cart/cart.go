// Package cart holds the shopping cart state and its transitions.
//
// Transitions are pure: each takes a State and returns a new one without
// touching the input. Store wraps them with locking and change notification.
package cart

import (
	"math"
	"slices"

	"github.com/shopspring/decimal"
)

const (
	MinQty = 1
	MaxQty = 99
)

// Product is the minimal product view needed to put something in a cart.
type Product struct {
	ID    int64
	Title string
	Price decimal.Decimal
	Image string
}

// Item is one cart line. Price is the unit price at the time the item was added.
type Item struct {
	ID    int64           `json:"id"`
	Title string          `json:"title"`
	Price decimal.Decimal `json:"price"`
	Image string          `json:"image"`
	Qty   int             `json:"qty"`
}

// State is the ordered list of cart lines. Insertion order is display order.
type State struct {
	Items []Item `json:"items"`
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	if s.Items == nil {
		return State{Items: []Item{}}
	}
	return State{Items: slices.Clone(s.Items)}
}

// IsEmpty reports whether the cart has no lines.
func (s State) IsEmpty() bool {
	return len(s.Items) == 0
}

// TotalCount is the sum of quantities.
func (s State) TotalCount() int {
	n := 0
	for _, it := range s.Items {
		n += it.Qty
	}
	return n
}

// TotalPrice is the exact sum of qty*price over all lines.
func (s State) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, it := range s.Items {
		total = total.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Qty))))
	}
	return total
}

func (s State) indexOf(id int64) int {
	return slices.IndexFunc(s.Items, func(it Item) bool { return it.ID == id })
}

// LoadCart replaces the whole state with snapshot. The snapshot is taken verbatim.
func LoadCart(_ State, snapshot State) State {
	return snapshot.Clone()
}

// AddToCart increments the quantity of an existing line or appends a new line with qty 1.
// Repeated adds are not capped at MaxQty.
func AddToCart(s State, p Product) State {
	next := s.Clone()
	if i := next.indexOf(p.ID); i >= 0 {
		next.Items[i].Qty++
		return next
	}
	next.Items = append(next.Items, Item{ID: p.ID, Title: p.Title, Price: p.Price, Image: p.Image, Qty: 1})
	return next
}

// RemoveFromCart drops the line with the given id. Unknown ids are a no-op.
func RemoveFromCart(s State, id int64) State {
	next := s.Clone()
	next.Items = slices.DeleteFunc(next.Items, func(it Item) bool { return it.ID == id })
	return next
}

// SetQuantity sets the quantity of an existing line to NormalizeQty(qty).
// Unknown ids are a no-op.
func SetQuantity(s State, id int64, qty float64) State {
	next := s.Clone()
	if i := next.indexOf(id); i >= 0 {
		next.Items[i].Qty = NormalizeQty(qty)
	}
	return next
}

// ClearCart empties the cart.
func ClearCart(State) State {
	return State{Items: []Item{}}
}

// NormalizeQty maps a requested quantity onto [MinQty, MaxQty].
// Zero and NaN mean 1; fractions are truncated toward negative infinity.
func NormalizeQty(qty float64) int {
	if math.IsNaN(qty) || qty == 0 {
		qty = 1
	}
	qty = math.Floor(qty)
	switch {
	case qty < MinQty:
		return MinQty
	case qty > MaxQty:
		return MaxQty
	default:
		return int(qty)
	}
}
