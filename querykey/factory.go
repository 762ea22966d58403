package querykey

import "fmt"

// Segment names used by Factory.
const (
	SegmentItems       = "items"
	SegmentItem        = "item"
	SegmentItemDetails = "item-details"
)

// Factory builds the keys of one scope.
//
// Contract:
// - Determinism: the same arguments always produce equal keys.
// - Hierarchy: every key strictly extends the key of its parent.
// - Concurrency: a Factory is immutable and safe for concurrent use.
type Factory struct {
	scope string
}

// NewFactory creates a factory rooted at scope.
func NewFactory(scope string) (*Factory, error) {
	if err := validateSegment(scope); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidScope, scope)
	}
	return &Factory{scope: scope}, nil
}

// MustFactory is like NewFactory but panics on an invalid scope.
func MustFactory(scope string) *Factory {
	f, err := NewFactory(scope)
	if err != nil {
		panic(err)
	}
	return f
}

// Scope returns the factory's root scope name.
func (f *Factory) Scope() string {
	return f.scope
}

// All returns the scope-wide key: [scope].
func (f *Factory) All() Key {
	return New(f.scope)
}

// Items returns the listing key: [scope, "items"].
func (f *Factory) Items() Key {
	return f.All().Append(SegmentItems)
}

// Item returns the key of one item: [scope, "items", "item", id].
func (f *Factory) Item(id string) Key {
	return f.Items().Append(SegmentItem, id)
}

// ItemDetails returns the key of an item's details:
// [scope, "items", "item", id, "item-details"].
func (f *Factory) ItemDetails(id string) Key {
	return f.Item(id).Append(SegmentItemDetails)
}
