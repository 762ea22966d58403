package observe_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonwraymond/querykit/observe"
	"github.com/jonwraymond/querykit/querykey"
)

func ExampleNewObserver() {
	cfg := observe.Config{
		ServiceName: "querydemo",
		Version:     "1.0.0",
		Tracing:     observe.TracingConfig{Enabled: true, Exporter: "none", SamplePct: 1},
		Metrics:     observe.MetricsConfig{Enabled: false},
		Logging:     observe.LoggingConfig{Enabled: false},
	}

	ctx := context.Background()
	obs, err := observe.NewObserver(ctx, cfg)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	defer func() {
		_ = obs.Shutdown(ctx)
	}()

	fmt.Println("Observer created successfully")
	// Output:
	// Observer created successfully
}

func ExampleNewObserver_validation() {
	_, err := observe.NewObserver(context.Background(), observe.Config{})
	if errors.Is(err, observe.ErrMissingServiceName) {
		fmt.Println("Caught: missing service name")
	}
	// Output:
	// Caught: missing service name
}

func ExampleQueryMeta_SpanName() {
	keys := querykey.MustFactory("all")

	fmt.Println(observe.MetaFor(observe.OpFetch, keys.ItemDetails("42")).SpanName())
	fmt.Println(observe.MetaFor(observe.OpInvalidate, querykey.Root()).SpanName())
	// Output:
	// query.fetch.all
	// query.invalidate.root
}

func ExampleMiddleware_Wrap() {
	mw := observe.NewMiddleware(nil, nil, nil)
	meta := observe.MetaFor(observe.OpFetch, querykey.New("all", "items"))

	fetch := mw.Wrap(meta, func(context.Context) (any, error) {
		return []string{"a", "b"}, nil
	})

	items, err := fetch(context.Background())
	fmt.Println(items, err)
	// Output:
	// [a b] <nil>
}
