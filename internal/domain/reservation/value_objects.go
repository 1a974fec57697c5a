package reservation

import (
	"errors"
	"sort"

	"github.com/google/uuid"
)

var (
	ErrEmptyLines      = errors.New("reservation must hold at least one line")
	ErrInvalidQuantity = errors.New("line quantity must be positive")
	ErrInvalidProduct  = errors.New("line product id is required")
)

// Line is one product quantity held for an order.
type Line struct {
	ProductID uuid.UUID `json:"productId"`
	Quantity  int       `json:"quantity"`
}

func NewLine(productID uuid.UUID, quantity int) (Line, error) {
	if productID == uuid.Nil {
		return Line{}, ErrInvalidProduct
	}
	if quantity <= 0 {
		return Line{}, ErrInvalidQuantity
	}
	return Line{ProductID: productID, Quantity: quantity}, nil
}

// NormalizeLines validates lines and merges duplicates of the same product.
// The result is ordered by product id so that row locks are always taken in
// the same order.
func NormalizeLines(lines []Line) ([]Line, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyLines
	}

	merged := make(map[uuid.UUID]int, len(lines))
	for _, l := range lines {
		if _, err := NewLine(l.ProductID, l.Quantity); err != nil {
			return nil, err
		}
		merged[l.ProductID] += l.Quantity
	}

	out := make([]Line, 0, len(merged))
	for id, qty := range merged {
		out = append(out, Line{ProductID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ProductID.String() < out[j].ProductID.String()
	})
	return out, nil
}

func TotalQuantity(lines []Line) int {
	total := 0
	for _, l := range lines {
		total += l.Quantity
	}
	return total
}
