package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonwraymond/querykit/observe"
)

// stateVersion is the version field of persisted blobs.
const stateVersion = 0

// envelope is the persisted blob shape: {"state": {...}, "version": 0}.
type envelope[S any] struct {
	State   S   `json:"state"`
	Version int `json:"version"`
}

type eventsState struct {
	Events []Event `json:"events"`
}

type filterState struct {
	IncludedEventTypes []Type `json:"includedEventTypes"`
}

func (l *Log) encodeEvents() ([]byte, error) {
	l.mu.RLock()
	state := eventsState{Events: l.events}
	if state.Events == nil {
		state.Events = []Event{}
	}
	data, err := json.Marshal(envelope[eventsState]{State: state, Version: stateVersion})
	l.mu.RUnlock()
	return data, err
}

func (l *Log) encodeFilter() ([]byte, error) {
	l.mu.RLock()
	state := filterState{IncludedEventTypes: l.included}
	if state.IncludedEventTypes == nil {
		state.IncludedEventTypes = []Type{}
	}
	data, err := json.Marshal(envelope[filterState]{State: state, Version: stateVersion})
	l.mu.RUnlock()
	return data, err
}

// Dirty bits, one per blob.
const (
	dirtyEvents uint32 = 1 << iota
	dirtyFilter
)

func (l *Log) persistEvents() { l.markDirty(dirtyEvents) }
func (l *Log) persistFilter() { l.markDirty(dirtyFilter) }

func (l *Log) markDirty(bit uint32) {
	if l.store == nil {
		return
	}
	l.dirty.Or(bit)
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// writeLoop saves dirty blobs FlushInterval after the first change that
// follows a save.
func (l *Log) writeLoop() {
	defer close(l.done)
	for {
		select {
		case <-l.quit:
			return
		case <-l.wake:
		}

		timer := time.NewTimer(l.opts.FlushInterval)
		select {
		case <-l.quit:
			timer.Stop()
			return
		case <-timer.C:
		}
		l.writeDirty()
	}
}

func (l *Log) writeDirty() {
	ctx, cancel := context.WithTimeout(context.Background(), l.opts.SaveTimeout)
	defer cancel()

	l.saveMu.Lock()
	defer l.saveMu.Unlock()
	bits := l.dirty.Swap(0)
	if bits&dirtyEvents != 0 {
		l.saveOrWarn(ctx, EventsBlob, l.encodeEvents)
	}
	if bits&dirtyFilter != 0 {
		l.saveOrWarn(ctx, FilterBlob, l.encodeFilter)
	}
}

func (l *Log) saveOrWarn(ctx context.Context, name string, encode func() ([]byte, error)) {
	if err := l.saveLocked(ctx, name, encode); err != nil {
		l.opts.Logger.Warn(ctx, "event log save failed",
			observe.Field{Key: "blob", Value: name},
			observe.Field{Key: "error", Value: err.Error()},
		)
	}
}

func (l *Log) saveLocked(ctx context.Context, name string, encode func() ([]byte, error)) error {
	blob, err := encode()
	if err != nil {
		return fmt.Errorf("eventlog: encode %s: %w", name, err)
	}
	if err := l.store.Save(ctx, name, blob); err != nil {
		return fmt.Errorf("eventlog: save %s: %w", name, err)
	}
	return nil
}

func (l *Log) load(ctx context.Context, name string, into any) bool {
	blob, ok, err := l.store.Load(ctx, name)
	if err != nil {
		l.opts.Logger.Warn(ctx, "event log load failed, starting empty",
			observe.Field{Key: "blob", Value: name},
			observe.Field{Key: "error", Value: err.Error()},
		)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(blob, into); err != nil {
		l.opts.Logger.Warn(ctx, "event log state corrupt, starting empty",
			observe.Field{Key: "blob", Value: name},
			observe.Field{Key: "error", Value: err.Error()},
		)
		return false
	}
	return true
}

func (l *Log) loadEvents(ctx context.Context) ([]Event, bool) {
	var env envelope[eventsState]
	if !l.load(ctx, EventsBlob, &env) {
		return nil, false
	}
	return env.State.Events, true
}

// loadFilter drops types this version does not know.
func (l *Log) loadFilter(ctx context.Context) ([]Type, bool) {
	var env envelope[filterState]
	if !l.load(ctx, FilterBlob, &env) {
		return nil, false
	}
	var included []Type
	for _, t := range env.State.IncludedEventTypes {
		if t.Valid() {
			included = append(included, t)
		}
	}
	return included, true
}
