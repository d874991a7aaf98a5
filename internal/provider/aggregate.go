package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
)

// Call is one named unit of a parallel fetch.
type Call struct {
	Name string
	Fn   func(ctx context.Context) (any, error)
}

// Typed adapts a typed fetcher into a Call.
func Typed[T any](name string, fn func(ctx context.Context) (T, error)) Call {
	return Call{Name: name, Fn: func(ctx context.Context) (any, error) { return fn(ctx) }}
}

// Fetched pairs a decoded payload with the field paths that failed validation.
type Fetched[T any] struct {
	Value   T
	Invalid []string
}

// Bind adapts a typed fetcher (see Client.Event et al.) into a Call whose
// result is a Fetched[T].
func Bind[T any](name string, fn func(ctx context.Context) (T, []string, error)) Call {
	return Call{Name: name, Fn: func(ctx context.Context) (any, error) {
		v, invalid, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return Fetched[T]{Value: v, Invalid: invalid}, nil
	}}
}

// CallError describes one failed call of an aggregate.
type CallError struct {
	Name string
	Err  error
}

func (e CallError) Error() string { return fmt.Sprintf("%s: %v", e.Name, e.Err) }
func (e CallError) Unwrap() error { return e.Err }

// Aggregate holds the calls that succeeded plus one CallError per failure.
type Aggregate struct {
	Results map[string]any
	Errors  []CallError
}

func (a Aggregate) OK(name string) bool {
	_, ok := a.Results[name]
	return ok
}

// Descriptions returns one line per failed call.
func (a Aggregate) Descriptions() []string {
	out := make([]string, 0, len(a.Errors))
	for _, e := range a.Errors {
		out = append(out, e.Error())
	}
	return out
}

// Result fetches a typed result from an aggregate.
func Result[T any](a Aggregate, name string) (T, bool) {
	v, ok := a.Results[name]
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// FetchAll runs calls in parallel and waits for all of them. A failing or
// panicking call is reported in Errors and does not affect the others.
// Errors are ordered by call name.
func FetchAll(ctx context.Context, calls ...Call) Aggregate {
	agg := Aggregate{Results: make(map[string]any, len(calls))}
	var (
		mu sync.Mutex
		wg conc.WaitGroup
	)
	for _, call := range calls {
		call := call
		wg.Go(func() {
			var (
				v   any
				err error
				pc  panics.Catcher
			)
			pc.Try(func() { v, err = call.Fn(ctx) })
			if r := pc.Recovered(); r != nil {
				err = r.AsError()
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				agg.Errors = append(agg.Errors, CallError{Name: call.Name, Err: err})
				return
			}
			agg.Results[call.Name] = v
		})
	}
	wg.Wait()

	sort.Slice(agg.Errors, func(i, j int) bool { return agg.Errors[i].Name < agg.Errors[j].Name })
	return agg
}
