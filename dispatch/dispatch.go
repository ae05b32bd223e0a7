// Package dispatch turns operator input into a remote lookup and records
// the answer in the result history.
//
// Information Hiding:
// - Category resolution (explicit selection vs detection) hidden behind ResolveType
// - Single vs batch call shape chosen from the list flag
// - Admission control: one outstanding dispatch at a time
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/richinex/fistop/detect"
	"go.uber.org/zap"
)

// Auto selects the detected category instead of an explicit one.
const Auto = "auto"

var (
	// ErrTokenRequired is returned when no access token is available.
	ErrTokenRequired = errors.New("token required")
	// ErrTypeRequired is returned when neither selection nor detection yields a category.
	ErrTypeRequired = errors.New("specify request type")
	// ErrBusy is returned while another dispatch is outstanding.
	ErrBusy = errors.New("a lookup is already in progress")
	// ErrEmptyInput is returned when there is nothing to look up.
	ErrEmptyInput = errors.New("nothing to look up")
)

// Lookuper performs remote lookups. *api.Client satisfies it.
type Lookuper interface {
	Lookup(ctx context.Context, token, category, item string) (json.RawMessage, error)
	LookupBatch(ctx context.Context, token, category string, items []string) (json.RawMessage, error)
}

// Recorder stores a successful answer and makes it current.
type Recorder interface {
	Append(ctx context.Context, value json.RawMessage) (int, error)
	Select(ctx context.Context, index int) error
}

// Outcome describes one completed dispatch.
type Outcome struct {
	Index    int             // history index the answer was stored at
	Type     string          // effective type dispatched to
	Category string          // endpoint path segment used
	IsList   bool            // whether a batch call was made
	Items    []string        // items sent
	Value    json.RawMessage // answer as stored
}

// Dispatcher resolves categories, calls the remote API and records results.
type Dispatcher struct {
	client    Lookuper
	results   Recorder
	endpoints map[string]string
	logger    *zap.Logger

	inFlight atomic.Bool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithEndpoints maps effective types to endpoint path segments. Unmapped
// types use their own name.
func WithEndpoints(m map[string]string) Option {
	return func(d *Dispatcher) {
		for k, v := range m {
			d.endpoints[k] = v
		}
	}
}

// WithLogger sets the logger. Nil keeps the no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// New creates a dispatcher.
func New(client Lookuper, results Recorder, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		client:    client,
		results:   results,
		endpoints: make(map[string]string),
		logger:    zap.NewNop(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// ResolveType returns detected when selected is Auto, otherwise selected.
// An empty result is ErrTypeRequired.
func ResolveType(selected string, detected detect.Type) (string, error) {
	effective := selected
	if selected == Auto {
		effective = string(detected)
	}
	if effective == "" {
		return "", ErrTypeRequired
	}
	return effective, nil
}

// Endpoint returns the path segment for an effective type.
func (d *Dispatcher) Endpoint(effectiveType string) string {
	if ep, ok := d.endpoints[effectiveType]; ok && ep != "" {
		return ep
	}
	return effectiveType
}

// Dispatch performs the lookup for rawInput and records the answer.
// Remote errors are returned unmodified and nothing is stored.
func (d *Dispatcher) Dispatch(ctx context.Context, rawInput, effectiveType string, isList bool, token string) (Outcome, error) {
	if token == "" {
		return Outcome{}, ErrTokenRequired
	}
	if effectiveType == "" {
		return Outcome{}, ErrTypeRequired
	}

	var items []string
	if isList {
		items = strings.Fields(rawInput)
	} else if item := strings.TrimSpace(rawInput); item != "" {
		items = []string{item}
	}
	if len(items) == 0 {
		return Outcome{}, ErrEmptyInput
	}

	if !d.inFlight.CompareAndSwap(false, true) {
		return Outcome{}, ErrBusy
	}
	defer d.inFlight.Store(false)

	category := d.Endpoint(effectiveType)
	d.logger.Debug("dispatching lookup",
		zap.String("type", effectiveType),
		zap.String("category", category),
		zap.Bool("list", isList),
		zap.Int("items", len(items)))

	var (
		value json.RawMessage
		err   error
	)
	if isList {
		value, err = d.client.LookupBatch(ctx, token, category, items)
	} else {
		value, err = d.client.Lookup(ctx, token, category, items[0])
	}
	if err != nil {
		d.logger.Debug("lookup failed", zap.String("category", category), zap.Error(err))
		return Outcome{}, err
	}

	index, err := d.results.Append(ctx, value)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to store result: %w", err)
	}
	if err := d.results.Select(ctx, index); err != nil {
		return Outcome{}, fmt.Errorf("failed to select result %d: %w", index, err)
	}

	d.logger.Info("lookup stored",
		zap.Int("index", index),
		zap.String("category", category),
		zap.Int("items", len(items)))

	return Outcome{
		Index:    index,
		Type:     effectiveType,
		Category: category,
		IsList:   isList,
		Items:    items,
		Value:    value,
	}, nil
}

// Submit classifies rawInput, resolves the effective type against selected
// and dispatches. The token check runs before type resolution so a missing
// token is always reported first.
func (d *Dispatcher) Submit(ctx context.Context, detector detect.Detector, rawInput, selected, token string) (Outcome, error) {
	if token == "" {
		return Outcome{}, ErrTokenRequired
	}
	classified := detector.ClassifyInput(rawInput)
	effective, err := ResolveType(selected, classified.Type)
	if err != nil {
		return Outcome{}, err
	}
	return d.Dispatch(ctx, rawInput, effective, classified.IsList, token)
}
