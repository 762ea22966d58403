package items

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonwraymond/querykit/fetch"
	"github.com/jonwraymond/querykit/mutation"
	"github.com/jonwraymond/querykit/querykey"
	"github.com/jonwraymond/querykit/resilience"
)

// Queries binds the item keys to a backend, a coordinator and a mutation
// executor.
type Queries struct {
	keys    *querykey.Factory
	backend Backend
	coord   *fetch.Coordinator
	exec    *mutation.Executor

	// AwaitRefetch makes mutations return only after the queries they
	// invalidated have been refetched.
	AwaitRefetch bool
}

// NewQueries creates Queries for keys.
func NewQueries(keys *querykey.Factory, backend Backend, coord *fetch.Coordinator, exec *mutation.Executor) *Queries {
	return &Queries{keys: keys, backend: backend, coord: coord, exec: exec}
}

// Keys returns the key factory.
func (q *Queries) Keys() *querykey.Factory {
	return q.keys
}

// ObserveAll observes the item list.
func (q *Queries) ObserveAll(ctx context.Context) (*fetch.Subscription, error) {
	return q.coord.Observe(ctx, q.keys.Items(), func(ctx context.Context) (any, error) {
		return q.backend.List(ctx)
	}, fetch.WithName("Fetched All Items"))
}

// ObserveItem observes one item.
func (q *Queries) ObserveItem(ctx context.Context, id string) (*fetch.Subscription, error) {
	return q.coord.Observe(ctx, q.keys.Item(id), func(ctx context.Context) (any, error) {
		sum, err := q.backend.Get(ctx, id)
		return sum, permanentIfMissing(err)
	}, fetch.WithName(fmt.Sprintf("Get ITEM by id %s fetched", id)))
}

// ObserveItemDetails observes one item's details.
func (q *Queries) ObserveItemDetails(ctx context.Context, id string) (*fetch.Subscription, error) {
	return q.coord.Observe(ctx, q.keys.ItemDetails(id), func(ctx context.Context) (any, error) {
		d, err := q.backend.Details(ctx, id)
		return d, permanentIfMissing(err)
	}, fetch.WithName(fmt.Sprintf("Get ITEM DETAILS by id %s fetched", id)))
}

// permanentIfMissing stops fetch retries for ids the backend does not know.
func permanentIfMissing(err error) error {
	if errors.Is(err, ErrNotFound) {
		return resilience.Permanent(err)
	}
	return err
}

func (q *Queries) options(name string, invalidates ...querykey.Key) mutation.Options {
	return mutation.Options{Name: name, Invalidates: invalidates, AwaitRefetch: q.AwaitRefetch}
}

type newItem struct {
	name, detailsName string
}

// AddItem adds an item and invalidates the list.
func (q *Queries) AddItem(ctx context.Context, name, detailsName string) (Item, error) {
	return mutation.RunWith(ctx, q.exec, func(ctx context.Context, in newItem) (Item, error) {
		return q.backend.Add(ctx, in.name, in.detailsName)
	}, newItem{name: name, detailsName: detailsName}, q.options("addItem", q.keys.Items()))
}

// DeleteItem deletes an item and invalidates the list.
func (q *Queries) DeleteItem(ctx context.Context, id string) error {
	return q.exec.Run(ctx, func(ctx context.Context) error {
		return q.backend.Delete(ctx, id)
	}, q.options("deleteItem", q.keys.Items()))
}

// UpdateItemName renames an item and invalidates the list.
func (q *Queries) UpdateItemName(ctx context.Context, id, name string) error {
	return q.exec.Run(ctx, func(ctx context.Context) error {
		return q.backend.Rename(ctx, id, name)
	}, q.options("updateItemName", q.keys.Items()))
}

// UpdateItemDetailsName renames an item's details and invalidates only
// that item's details key.
func (q *Queries) UpdateItemDetailsName(ctx context.Context, id, name string) error {
	return q.exec.Run(ctx, func(ctx context.Context) error {
		return q.backend.RenameDetails(ctx, id, name)
	}, q.options("updateItemDetailsName", q.keys.ItemDetails(id)))
}
