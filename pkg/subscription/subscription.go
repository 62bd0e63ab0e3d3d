// Package subscription runs GraphQL subscriptions over pub/sub channels.
//
// A subscription listens on one or more trigger channels. The default
// trigger is the channel named after the subscription's root field; a setup
// function registered for the field can replace the triggers and attach a
// filter to each. Every delivered payload becomes the root value of one
// execution of the subscription query.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/gqlerrors"
	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"github.com/pradyumna-smpx/gqutils/pkg/pubsub"
)

var (
	// ErrNotSubscription is returned for query and mutation operations.
	ErrNotSubscription = errors.New("operation is not a subscription")
	// ErrUnknownSubscription is returned for an unknown subscription id.
	ErrUnknownSubscription = errors.New("unknown subscription")
)

// Metrics for subscriptions.
var (
	activeSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gqutils_subscriptions_active",
		Help: "Current number of active subscriptions",
	})

	subscriptionEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gqutils_subscription_events_total",
			Help: "Total number of subscription events by outcome",
		},
		[]string{"field", "outcome"},
	)
)

// Request is a subscription request.
type Request struct {
	Query         string
	Variables     map[string]interface{}
	OperationName string
	// Values carries transport specific data, such as connection
	// parameters, to setup functions and filters.
	Values map[string]interface{}
}

// TriggerConfig configures one trigger channel.
type TriggerConfig struct {
	// Filter decides whether a payload is delivered. Nil delivers every
	// payload.
	Filter func(payload interface{}) bool
}

// SetupFunc returns the trigger channels of a subscription field.
type SetupFunc func(req Request, args map[string]interface{}, name string) map[string]TriggerConfig

// FilterFunc decides whether a payload is delivered to a subscriber.
type FilterFunc func(payload interface{}, args map[string]interface{}, req Request) bool

// FromFilter builds a setup function that listens on the channel named after
// the field and delivers the payloads accepted by filter.
//
// Parameters:
//   - filter (FilterFunc): delivery predicate
//
// Returns:
//   - SetupFunc: setup function for the field
func FromFilter(filter FilterFunc) SetupFunc {
	return func(req Request, args map[string]interface{}, name string) map[string]TriggerConfig {
		return map[string]TriggerConfig{
			name: {
				Filter: func(payload interface{}) bool {
					return filter(payload, args, req)
				},
			},
		}
	}
}

// RequestError reports an invalid subscription request.
type RequestError struct {
	Errors []gqlerrors.FormattedError
}

func (e *RequestError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		msgs[i] = fe.Message
	}
	return "invalid subscription: " + strings.Join(msgs, "; ")
}

// Manager starts and stops subscriptions against one schema.
type Manager struct {
	schema graphql.Schema
	pubsub *pubsub.PubSub
	setup  map[string]SetupFunc

	mu   sync.Mutex
	subs map[string]context.CancelFunc
}

// NewManager creates a subscription manager.
//
// Parameters:
//   - schema (graphql.Schema): schema subscriptions execute against
//   - ps (*pubsub.PubSub): pub/sub delivering trigger payloads
//   - setup (map[string]SetupFunc): setup functions by subscription field
//
// Returns:
//   - *Manager: initialized manager
func NewManager(schema graphql.Schema, ps *pubsub.PubSub, setup map[string]SetupFunc) *Manager {
	if setup == nil {
		setup = make(map[string]SetupFunc)
	}
	return &Manager{
		schema: schema,
		pubsub: ps,
		setup:  setup,
		subs:   make(map[string]context.CancelFunc),
	}
}

// PubSub returns the pub/sub the manager listens on.
func (m *Manager) PubSub() *pubsub.PubSub {
	return m.pubsub
}

// HasSetup reports whether a setup function is registered for a field.
func (m *Manager) HasSetup(field string) bool {
	_, ok := m.setup[field]
	return ok
}

// Subscribe validates a subscription request and starts listening on its
// trigger channels. Results are delivered on the returned channel, which is
// closed when ctx is cancelled or Unsubscribe is called.
//
// Parameters:
//   - ctx (context.Context): subscription lifetime
//   - req (Request): subscription request
//
// Returns:
//   - string: subscription id
//   - <-chan *graphql.Result: execution results, one per delivered payload
//   - error: nil on success, *RequestError or ErrNotSubscription on failure
func (m *Manager) Subscribe(ctx context.Context, req Request) (string, <-chan *graphql.Result, error) {
	doc, err := parser.Parse(parser.ParseParams{Source: req.Query})
	if err != nil {
		return "", nil, &RequestError{Errors: gqlerrors.FormatErrors(err)}
	}

	vr := graphql.ValidateDocument(&m.schema, doc, nil)
	if !vr.IsValid {
		return "", nil, &RequestError{Errors: vr.Errors}
	}

	op, err := operation(doc, req.OperationName)
	if err != nil {
		return "", nil, err
	}
	if op.Operation != ast.OperationTypeSubscription {
		return "", nil, ErrNotSubscription
	}

	field, err := rootField(op)
	if err != nil {
		return "", nil, err
	}
	name := field.Name.Value

	subType := m.schema.SubscriptionType()
	if subType == nil {
		return "", nil, ErrNotSubscription
	}
	def, ok := subType.Fields()[name]
	if !ok {
		return "", nil, fmt.Errorf("subscription field %q not found", name)
	}
	args := argumentValues(def.Args, field.Arguments, req.Variables)

	triggers := map[string]TriggerConfig{name: {}}
	if setup, ok := m.setup[name]; ok {
		triggers = setup(req, args, name)
	}

	subCtx, cancel := context.WithCancel(ctx)
	id := uuid.New().String()
	out := make(chan *graphql.Result, pubsub.DefaultBufferSize)

	var wg sync.WaitGroup
	for channel, trigger := range triggers {
		payloads, cleanup := m.pubsub.Subscribe(subCtx, channel)
		wg.Add(1)
		go func(trigger TriggerConfig) {
			defer wg.Done()
			defer cleanup()
			m.deliver(subCtx, doc, req, name, trigger, payloads, out)
		}(trigger)
	}

	m.mu.Lock()
	m.subs[id] = cancel
	m.mu.Unlock()
	activeSubscriptions.Inc()

	log.Debug().
		Str("subscriptionID", id).
		Str("field", name).
		Int("triggers", len(triggers)).
		Msg("subscription started")

	go func() {
		<-subCtx.Done()
		wg.Wait()
		close(out)

		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
		activeSubscriptions.Dec()

		log.Debug().Str("subscriptionID", id).Msg("subscription stopped")
	}()

	return id, out, nil
}

// Unsubscribe stops a subscription.
//
// Parameters:
//   - id (string): subscription id returned by Subscribe
//
// Returns:
//   - error: nil on success, ErrUnknownSubscription if id is not active
func (m *Manager) Unsubscribe(id string) error {
	m.mu.Lock()
	cancel, ok := m.subs[id]
	m.mu.Unlock()

	if !ok {
		return ErrUnknownSubscription
	}
	cancel()
	return nil
}

// Count returns the number of active subscriptions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// deliver executes the subscription for every accepted payload until ctx is
// done or the payload channel closes.
func (m *Manager) deliver(ctx context.Context, doc *ast.Document, req Request, name string, trigger TriggerConfig, payloads <-chan any, out chan<- *graphql.Result) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-payloads:
			if !ok {
				return
			}
			if trigger.Filter != nil && !trigger.Filter(payload) {
				subscriptionEvents.WithLabelValues(name, "filtered").Inc()
				continue
			}

			root, isMap := payload.(map[string]interface{})
			if !isMap {
				root = map[string]interface{}{name: payload}
			}

			result := graphql.Execute(graphql.ExecuteParams{
				Schema:        m.schema,
				Root:          root,
				AST:           doc,
				OperationName: req.OperationName,
				Args:          req.Variables,
				Context:       ctx,
			})
			subscriptionEvents.WithLabelValues(name, "delivered").Inc()

			select {
			case out <- result:
			case <-ctx.Done():
				return
			}
		}
	}
}

func operation(doc *ast.Document, name string) (*ast.OperationDefinition, error) {
	var found *ast.OperationDefinition
	for _, def := range doc.Definitions {
		op, ok := def.(*ast.OperationDefinition)
		if !ok {
			continue
		}
		if name == "" {
			if found != nil {
				return nil, fmt.Errorf("operation name required for documents with multiple operations")
			}
			found = op
			continue
		}
		if op.Name != nil && op.Name.Value == name {
			return op, nil
		}
	}
	if found == nil {
		return nil, fmt.Errorf("operation %q not found", name)
	}
	return found, nil
}

func rootField(op *ast.OperationDefinition) (*ast.Field, error) {
	if op.SelectionSet == nil || len(op.SelectionSet.Selections) != 1 {
		return nil, fmt.Errorf("subscription must select exactly one root field")
	}
	field, ok := op.SelectionSet.Selections[0].(*ast.Field)
	if !ok || field.Name == nil {
		return nil, fmt.Errorf("subscription root selection must be a field")
	}
	return field, nil
}
