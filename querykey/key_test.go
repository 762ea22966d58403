package querykey

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestKey_HasPrefix(t *testing.T) {
	items := New("all", "items")

	tests := []struct {
		name   string
		key    Key
		prefix Key
		want   bool
	}{
		{"equal keys", items, New("all", "items"), true},
		{"root prefix", items, Root(), true},
		{"root of root", Root(), Root(), true},
		{"descendant", New("all", "items", "item", "42"), items, true},
		{"ancestor is not descendant", items, New("all", "items", "item"), false},
		{"sibling", New("all", "other"), items, false},
		{"segment mismatch in middle", New("all", "item", "items"), items, false},
		{"partial segment is not a prefix", New("all", "itemsx"), items, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.HasPrefix(tt.prefix); got != tt.want {
				t.Errorf("%v.HasPrefix(%v) = %v, want %v", tt.key, tt.prefix, got, tt.want)
			}
		})
	}
}

func TestKey_IsDescendantOf(t *testing.T) {
	items := New("all", "items")
	if items.IsDescendantOf(items) {
		t.Error("key should not be a strict descendant of itself")
	}
	if !New("all", "items", "item").IsDescendantOf(items) {
		t.Error("extended key should be a descendant")
	}
}

func TestKey_Immutable(t *testing.T) {
	segments := []string{"all", "items"}
	k := New(segments...)

	// Mutating the input must not affect the key
	segments[0] = "changed"
	if k.Scope() != "all" {
		t.Errorf("Scope() = %q, want %q", k.Scope(), "all")
	}

	// Mutating the returned slice must not affect the key
	got := k.Segments()
	got[1] = "changed"
	if !k.Equal(New("all", "items")) {
		t.Errorf("key changed after mutating Segments(): %v", k)
	}

	// Append must not alias the parent's backing array
	parent := New("all", "items")
	a := parent.Append("a")
	b := parent.Append("b")
	if a.Equal(b) {
		t.Errorf("Append results alias each other: %v, %v", a, b)
	}
}

func TestKey_StringCanonical(t *testing.T) {
	if got := Root().String(); got != "[]" {
		t.Errorf("Root().String() = %q, want []", got)
	}

	k := New("all", "items", "item", "42")
	want := `["all","items","item","42"]`
	if got := k.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	if New("a", "b").String() == New("a,b").String() {
		t.Error("distinct keys must have distinct canonical forms")
	}
}

func TestKey_ParseRoundTrip(t *testing.T) {
	k := New("all", "items", "item", `with "quotes"`)

	parsed, err := Parse(k.String())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !parsed.Equal(k) {
		t.Errorf("Parse(String()) = %v, want %v", parsed, k)
	}
}

func TestKey_ParseRejectsInvalid(t *testing.T) {
	inputs := []string{
		`not json`,
		`{"a":1}`,
		`["all",""]`,
		`["all","  "]`,
		`["bad\nsegment"]`,
	}
	for _, in := range inputs {
		if _, err := Parse(in); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Parse(%q) error = %v, want ErrInvalidKey", in, err)
		}
	}
}

func TestKey_ValidateLength(t *testing.T) {
	many := make([]string, MaxSegments+1)
	for i := range many {
		many[i] = "s"
	}
	if err := New(many...).Validate(); !errors.Is(err, ErrKeyTooLong) {
		t.Errorf("Validate() error = %v, want ErrKeyTooLong", err)
	}

	long := New(strings.Repeat("x", MaxKeyLength))
	if err := long.Validate(); !errors.Is(err, ErrKeyTooLong) {
		t.Errorf("Validate() error = %v, want ErrKeyTooLong", err)
	}

	if err := Root().Validate(); err != nil {
		t.Errorf("Root().Validate() error = %v", err)
	}
}

func TestKey_JSON(t *testing.T) {
	type wrapper struct {
		Key Key `json:"key"`
	}

	data, err := json.Marshal(wrapper{Key: New("all", "items")})
	if err != nil {
		t.Fatalf("Marshal error = %v", err)
	}
	if string(data) != `{"key":["all","items"]}` {
		t.Errorf("Marshal = %s", data)
	}

	var w wrapper
	if err := json.Unmarshal(data, &w); err != nil {
		t.Fatalf("Unmarshal error = %v", err)
	}
	if !w.Key.Equal(New("all", "items")) {
		t.Errorf("Unmarshal key = %v", w.Key)
	}
}

func TestKey_Parent(t *testing.T) {
	k := New("all", "items", "item")
	if got := k.Parent(); !got.Equal(New("all", "items")) {
		t.Errorf("Parent() = %v", got)
	}
	if got := New("all").Parent(); !got.IsRoot() {
		t.Errorf("Parent of single segment = %v, want root", got)
	}
	if got := Root().Parent(); !got.IsRoot() {
		t.Errorf("Parent of root = %v, want root", got)
	}
}
