package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jonwraymond/querykit/eventlog"
	"github.com/jonwraymond/querykit/fetch"
	"github.com/jonwraymond/querykit/items"
	"github.com/jonwraymond/querykit/querycache"
	"github.com/jonwraymond/querykit/querykey"
	"github.com/jonwraymond/querykit/visibility"
)

const maxBodyBytes = 1 << 20

// entryView is the JSON shape of a cache entry.
type entryView struct {
	Key          querykey.Key      `json:"key"`
	Status       querycache.Status `json:"status"`
	Data         any               `json:"data,omitempty"`
	Error        string            `json:"error,omitempty"`
	FetchedAt    *time.Time        `json:"fetchedAt,omitempty"`
	StaleAt      *time.Time        `json:"staleAt,omitempty"`
	IsStale      bool              `json:"isStale"`
	IsLoading    bool              `json:"isLoading"`
	IsRefetching bool              `json:"isRefetching"`
	Subscribers  int               `json:"subscribers"`
}

func newEntryView(e querycache.Entry, now time.Time) entryView {
	v := entryView{
		Key:          e.Key,
		Status:       e.Status,
		Data:         e.Data,
		IsStale:      e.IsStale(now),
		IsLoading:    e.IsLoading(),
		IsRefetching: e.IsRefetching(),
		Subscribers:  e.Subscribers,
	}
	if e.Err != nil {
		v.Error = e.Err.Error()
	}
	if !e.FetchedAt.IsZero() {
		v.FetchedAt = &e.FetchedAt
		v.StaleAt = &e.StaleAt
	}
	return v
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, items.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, items.ErrInvalidName),
		errors.Is(err, querykey.ErrInvalidKey),
		errors.Is(err, querykey.ErrKeyTooLong),
		errors.Is(err, eventlog.ErrUnknownType):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func wantWait(r *http.Request) bool {
	return r.URL.Query().Get("wait") != "false"
}

// respondEntry waits for key to settle unless the client opted out, then
// writes the entry.
func (a *app) respondEntry(w http.ResponseWriter, r *http.Request, sub *fetch.Subscription) {
	if wantWait(r) {
		if err := a.coord.Settled(r.Context(), sub.Key()); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
	}
	e, ok := sub.Entry()
	if !ok {
		writeError(w, http.StatusNotFound, items.ErrNotFound)
		return
	}
	status := http.StatusOK
	if e.Status == querycache.StatusError && !e.HasData {
		status = statusFor(e.Err)
	}
	writeJSON(w, status, newEntryView(e, time.Now()))
}

// observeOnce observes a key for the duration of one request.
func (a *app) observeOnce(w http.ResponseWriter, r *http.Request, open func(context.Context) (*fetch.Subscription, error)) {
	sub, err := open(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	defer sub.Close()
	a.respondEntry(w, r, sub)
}

func (a *app) handleListItems(w http.ResponseWriter, r *http.Request) {
	a.respondEntry(w, r, a.list)
}

func (a *app) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a.observeOnce(w, r, func(ctx context.Context) (*fetch.Subscription, error) {
		return a.queries.ObserveItem(ctx, id)
	})
}

func (a *app) handleGetItemDetails(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a.observeOnce(w, r, func(ctx context.Context) (*fetch.Subscription, error) {
		return a.queries.ObserveItemDetails(ctx, id)
	})
}

type addItemRequest struct {
	Name        string `json:"name"`
	DetailsName string `json:"detailsName"`
}

func (a *app) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	it, err := a.queries.AddItem(r.Context(), req.Name, req.DetailsName)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, it)
}

type renameRequest struct {
	Name string `json:"name"`
}

func (a *app) handleRenameItem(w http.ResponseWriter, r *http.Request) {
	a.rename(w, r, a.queries.UpdateItemName)
}

func (a *app) handleRenameItemDetails(w http.ResponseWriter, r *http.Request) {
	a.rename(w, r, a.queries.UpdateItemDetailsName)
}

func (a *app) rename(w http.ResponseWriter, r *http.Request, update func(ctx context.Context, id, name string) error) {
	var req renameRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := update(r.Context(), chi.URLParam(r, "id"), req.Name); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *app) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := a.queries.DeleteItem(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type invalidateRequest struct {
	Key querykey.Key `json:"key"`
}

type invalidateResponse struct {
	Key       querykey.Key   `json:"key"`
	Refetched []querykey.Key `json:"refetched"`
}

// handleInvalidate invalidates a prefix. An empty body invalidates
// everything.
func (a *app) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := req.Key.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	refetched := a.coord.InvalidateManually(r.Context(), req.Key)
	if refetched == nil {
		refetched = []querykey.Key{}
	}
	writeJSON(w, http.StatusOK, invalidateResponse{Key: req.Key, Refetched: refetched})
}

type visibilityRequest struct {
	State string `json:"state"`
}

type visibilityResponse struct {
	State   string `json:"state"`
	Changed bool   `json:"changed"`
}

func (a *app) handleVisibility(w http.ResponseWriter, r *http.Request) {
	var req visibilityRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	state, ok := visibility.Parse(req.State)
	if !ok {
		writeError(w, http.StatusBadRequest, errors.New("state must be visible or hidden"))
		return
	}
	changed := a.signal.Set(state)
	writeJSON(w, http.StatusOK, visibilityResponse{State: state.String(), Changed: changed})
}

func (a *app) handleCache(w http.ResponseWriter, _ *http.Request) {
	now := time.Now()
	entries := a.store.Snapshot()
	views := make([]entryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, newEntryView(e, now))
	}
	writeJSON(w, http.StatusOK, views)
}

type eventsResponse struct {
	Events             []eventlog.Event `json:"events"`
	IncludedEventTypes []eventlog.Type  `json:"includedEventTypes"`
}

// handleListEvents returns the filtered view, or every event newest first
// with all=true.
func (a *app) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events := a.events.Filtered()
	if r.URL.Query().Get("all") == "true" {
		events = a.events.Sorted()
	}
	writeJSON(w, http.StatusOK, a.eventsResponse(events))
}

func (a *app) eventsResponse(events []eventlog.Event) eventsResponse {
	included := a.events.IncludedTypes()
	if events == nil {
		events = []eventlog.Event{}
	}
	if included == nil {
		included = []eventlog.Type{}
	}
	return eventsResponse{Events: events, IncludedEventTypes: included}
}

func (a *app) handleClearEvents(w http.ResponseWriter, _ *http.Request) {
	a.events.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (a *app) handleRemoveEvent(w http.ResponseWriter, r *http.Request) {
	if !a.events.Remove(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, errors.New("event not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type filterRequest struct {
	IncludedEventTypes []string `json:"includedEventTypes"`
}

func (a *app) handleSetFilter(w http.ResponseWriter, r *http.Request) {
	var req filterRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	types := make([]eventlog.Type, 0, len(req.IncludedEventTypes))
	for _, s := range req.IncludedEventTypes {
		t, err := eventlog.ParseType(s)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		types = append(types, t)
	}
	if err := a.events.SetIncludedTypes(types...); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, a.eventsResponse(a.events.Filtered()))
}

func (a *app) handleResetFilter(w http.ResponseWriter, _ *http.Request) {
	a.events.ResetFilter()
	writeJSON(w, http.StatusOK, a.eventsResponse(a.events.Filtered()))
}

func (a *app) handleToggleFilter(w http.ResponseWriter, r *http.Request) {
	t, err := eventlog.ParseType(chi.URLParam(r, "type"))
	if err == nil {
		err = a.events.ToggleType(t)
	}
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, a.eventsResponse(a.events.Filtered()))
}
