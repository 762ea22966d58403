package observe

import "github.com/jonwraymond/querykit/querykey"

// Operation names used in QueryMeta.
const (
	OpFetch      = "fetch"
	OpInvalidate = "invalidate"
	OpMutate     = "mutate"
)

// QueryMeta identifies the query an event belongs to.
type QueryMeta struct {
	Key       querykey.Key
	Operation string // fetch|invalidate|mutate
	Name      string // optional mutation or query name
}

// MetaFor returns the QueryMeta of op on key.
func MetaFor(op string, key querykey.Key) QueryMeta {
	return QueryMeta{Key: key, Operation: op}
}

// Scope returns the key's root scope, or "root" for the empty key.
func (m QueryMeta) Scope() string {
	if s := m.Key.Scope(); s != "" {
		return s
	}
	return "root"
}

// SpanName returns the deterministic span name.
// Format: query.<operation>.<scope> or query.<operation>.<scope>.<name>
func (m QueryMeta) SpanName() string {
	op := m.Operation
	if op == "" {
		op = OpFetch
	}
	name := "query." + op + "." + m.Scope()
	if m.Name != "" {
		name += "." + m.Name
	}
	return name
}
