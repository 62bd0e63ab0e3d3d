package audit

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pradyumna-smpx/gqutils/internal/store"
	"github.com/pradyumna-smpx/gqutils/pkg/connection"
	"github.com/pradyumna-smpx/gqutils/pkg/module"
	"github.com/pradyumna-smpx/gqutils/pkg/pubsub"
	"github.com/pradyumna-smpx/gqutils/pkg/schema"
	"github.com/pradyumna-smpx/gqutils/pkg/subscription"
)

// memory keeps entries in insertion order.
type memory struct {
	mu     sync.Mutex
	nextID uint64
	rows   []store.AuditEntry
	clock  time.Time
}

func (m *memory) entries(f store.AuditFilter) connection.Query[store.AuditEntry] {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []store.AuditEntry
	for _, e := range m.rows {
		if f.Action == nil || e.Action == *f.Action {
			out = append(out, e)
		}
	}
	if f.Descending {
		sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	}
	return connection.Slice(out)
}

func (m *memory) create(_ context.Context, entry *store.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	m.clock = m.clock.Add(time.Minute)
	entry.ID = m.nextID
	entry.CreatedAt = m.clock
	m.rows = append(m.rows, *entry)
	return nil
}

func (m *memory) get(_ context.Context, id uint64) (*store.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.rows {
		if e.ID == id {
			return &e, nil
		}
	}
	return nil, nil
}

func (m *memory) remove(_ context.Context, id uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, e := range m.rows {
		if e.ID == id {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func build(t *testing.T, ps *pubsub.PubSub) *schema.Result {
	t.Helper()

	mem := &memory{clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	mod := newModule(mem, ps)
	require.NoError(t, mod.Validate())

	res, err := schema.MakeFromModules([]module.Ref{module.Static(mod)}, schema.Options{PubSub: ps})
	require.NoError(t, err)
	return res
}

func do(t *testing.T, res *schema.Result, query string) map[string]interface{} {
	t.Helper()

	out := graphql.Do(graphql.Params{
		Schema:        res.Schema.GraphQL,
		RequestString: query,
		Context:       context.Background(),
	})
	require.Empty(t, out.Errors)
	return out.Data.(map[string]interface{})
}

func TestRequiresDatabase(t *testing.T) {
	_, err := New(module.Env{})
	assert.ErrorIs(t, err, ErrNoDatabase)
	assert.True(t, module.Global().Has(Name))
}

func TestRecordAndQuery(t *testing.T) {
	res := build(t, pubsub.New())

	data := do(t, res, `mutation {
  a: recordAudit(action: "login", actor: "ann", details: {ip: "10.0.0.1"}) { id action actor details createdAt }
  b: recordAudit(action: "logout", actor: "ann") { id }
  c: recordAudit(action: "login", actor: "bob") { id }
}`)
	assert.Equal(t, map[string]interface{}{
		"id":        "1",
		"action":    "login",
		"actor":     "ann",
		"details":   map[string]interface{}{"ip": "10.0.0.1"},
		"createdAt": "2024-01-01T00:01:00Z",
	}, data["a"])

	data = do(t, res, `{ auditEntries(first: 1, action: "login", orderDirection: DESC) {
  totalCount
  nodes { id actor }
  pageInfo { hasNextPage hasPreviousPage }
} }`)
	conn := data["auditEntries"].(map[string]interface{})
	assert.Equal(t, 2, conn["totalCount"])
	assert.Equal(t, []interface{}{map[string]interface{}{"id": "3", "actor": "bob"}}, conn["nodes"])
	assert.Equal(t, map[string]interface{}{"hasNextPage": true, "hasPreviousPage": false}, conn["pageInfo"])

	data = do(t, res, `{ auditEntry(id: "2") { action details } missing: auditEntry(id: "42") { action } }`)
	assert.Equal(t, map[string]interface{}{"action": "logout", "details": nil}, data["auditEntry"])
	assert.Nil(t, data["missing"])
}

func TestDeleteAuditEntry(t *testing.T) {
	res := build(t, pubsub.New())
	do(t, res, `mutation { recordAudit(action: "login") { id } }`)

	data := do(t, res, `mutation { deleteAuditEntry(id: "1") { id } }`)
	assert.Equal(t, map[string]interface{}{"id": "1"}, data["deleteAuditEntry"])

	data = do(t, res, `mutation { deleteAuditEntry(id: "1") { id } }`)
	assert.Nil(t, data["deleteAuditEntry"])

	out := graphql.Do(graphql.Params{
		Schema:        res.Schema.GraphQL,
		RequestString: `{ auditEntry(id: "abc") { id } }`,
		Context:       context.Background(),
	})
	require.Len(t, out.Errors, 1)
	assert.Contains(t, out.Errors[0].Message, "invalid audit entry id")
}

func TestAuditRecordedSubscription(t *testing.T) {
	ps := pubsub.New()
	res := build(t, ps)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, results, err := res.Subscriptions.Subscribe(ctx, subscription.Request{
		Query: `subscription { auditRecorded(action: "logout") { id action } }`,
	})
	require.NoError(t, err)

	do(t, res, `mutation { a: recordAudit(action: "login") { id } b: recordAudit(action: "logout") { id } }`)

	select {
	case r := <-results:
		require.Empty(t, r.Errors)
		assert.Equal(t, map[string]interface{}{
			"auditRecorded": map[string]interface{}{"id": "2", "action": "logout"},
		}, r.Data)
	case <-time.After(time.Second):
		t.Fatal("no entry delivered")
	}
}
