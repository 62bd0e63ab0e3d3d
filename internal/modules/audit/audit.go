// Package audit registers the "audit" module, a paginated audit log stored
// in PostgreSQL.
//
// The module needs a database: building it without one fails, so it is
// only listed in configurations that set a DSN.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/graphql-go/graphql"
	"gorm.io/datatypes"

	"github.com/pradyumna-smpx/gqutils/internal/store"
	"github.com/pradyumna-smpx/gqutils/pkg/connection"
	"github.com/pradyumna-smpx/gqutils/pkg/module"
	"github.com/pradyumna-smpx/gqutils/pkg/pubsub"
	"github.com/pradyumna-smpx/gqutils/pkg/resolver"
	"github.com/pradyumna-smpx/gqutils/pkg/subscription"
)

// Name is the registered module name.
const Name = "audit"

// RecordedChannel is the channel new entries are published on.
const RecordedChannel = "auditRecorded"

// ErrNoDatabase is returned when the module is built without a database.
var ErrNoDatabase = errors.New("audit module requires a database")

const typeDefs = `
# @types
type AuditEntry {
  id: ID!
  action: String!
  actor: String!
  details: JSON
  createdAt: DateTime!
}

@connection(AuditEntry)

# @queries
auditEntries(@paging.params, action: String, orderDirection: OrderDirection): AuditEntryConnection!
auditEntry(id: ID!): AuditEntry

# @mutations
recordAudit(action: String!, actor: String, details: JSON): AuditEntry!
deleteAuditEntry(id: ID!): DeletedItem

# @subscriptions
auditRecorded(action: String): AuditEntry
`

// backend is the storage the resolvers run against.
type backend interface {
	entries(f store.AuditFilter) connection.Query[store.AuditEntry]
	create(ctx context.Context, entry *store.AuditEntry) error
	get(ctx context.Context, id uint64) (*store.AuditEntry, error)
	remove(ctx context.Context, id uint64) (bool, error)
}

type storeBackend struct {
	s *store.Store
}

func (b storeBackend) entries(f store.AuditFilter) connection.Query[store.AuditEntry] {
	return b.s.AuditEntries(f)
}

func (b storeBackend) create(ctx context.Context, entry *store.AuditEntry) error {
	return b.s.CreateAuditEntry(ctx, entry)
}

func (b storeBackend) get(ctx context.Context, id uint64) (*store.AuditEntry, error) {
	return b.s.GetAuditEntry(ctx, id)
}

func (b storeBackend) remove(ctx context.Context, id uint64) (bool, error) {
	return b.s.DeleteAuditEntry(ctx, id)
}

func init() {
	module.Register(Name, New)
}

// New builds the audit module on the environment's database.
//
// Parameters:
//   - env (module.Env): shared services, DB is required
//
// Returns:
//   - *module.Module: the module
//   - error: ErrNoDatabase when env.DB is nil
func New(env module.Env) (*module.Module, error) {
	if env.DB == nil {
		return nil, ErrNoDatabase
	}
	s := store.Wrap(env.DB, store.DefaultConfig().CircuitBreaker)
	return newModule(storeBackend{s: s}, env.PubSub), nil
}

func newModule(b backend, ps *pubsub.PubSub) *module.Module {
	if ps == nil {
		ps = pubsub.New()
	}

	return &module.Module{
		Name:   Name,
		Schema: typeDefs,
		Resolvers: resolver.Map{
			"AuditEntry": resolver.Map{
				"id": graphql.FieldResolveFn(func(p graphql.ResolveParams) (interface{}, error) {
					return strconv.FormatUint(entryOf(p.Source).ID, 10), nil
				}),
				"details": graphql.FieldResolveFn(func(p graphql.ResolveParams) (interface{}, error) {
					return decodeDetails(entryOf(p.Source).Details)
				}),
			},
			"Query": resolver.Map{
				"auditEntries": graphql.FieldResolveFn(func(p graphql.ResolveParams) (interface{}, error) {
					f := store.AuditFilter{Descending: p.Args["orderDirection"] == "DESC"}
					if action, ok := p.Args["action"].(string); ok {
						f.Action = &action
					}
					return connection.FromArgs(b.entries(f), p.Args), nil
				}),
				"auditEntry": graphql.FieldResolveFn(func(p graphql.ResolveParams) (interface{}, error) {
					id, err := parseID(p.Args["id"])
					if err != nil {
						return nil, err
					}
					entry, err := b.get(p.Context, id)
					if err != nil || entry == nil {
						return nil, err
					}
					return entry, nil
				}),
			},
			"Mutation": resolver.Map{
				"recordAudit": graphql.FieldResolveFn(func(p graphql.ResolveParams) (interface{}, error) {
					entry := &store.AuditEntry{}
					entry.Action, _ = p.Args["action"].(string)
					entry.Actor, _ = p.Args["actor"].(string)
					if details, ok := p.Args["details"]; ok && details != nil {
						raw, err := json.Marshal(details)
						if err != nil {
							return nil, fmt.Errorf("encoding details: %w", err)
						}
						entry.Details = datatypes.JSON(raw)
					}

					if err := b.create(p.Context, entry); err != nil {
						return nil, err
					}
					ps.Publish(RecordedChannel, entry)
					return entry, nil
				}),
				"deleteAuditEntry": graphql.FieldResolveFn(func(p graphql.ResolveParams) (interface{}, error) {
					id, err := parseID(p.Args["id"])
					if err != nil {
						return nil, err
					}
					deleted, err := b.remove(p.Context, id)
					if err != nil || !deleted {
						return nil, err
					}
					return map[string]interface{}{"id": strconv.FormatUint(id, 10)}, nil
				}),
			},
			"Subscription": resolver.Map{
				// Entries arrive wrapped under the field name.
				"auditRecorded": graphql.FieldResolveFn(func(p graphql.ResolveParams) (interface{}, error) {
					if root, ok := p.Source.(map[string]interface{}); ok {
						return root[p.Info.FieldName], nil
					}
					return p.Source, nil
				}),
			},
			module.SubscriptionFilterKey: resolver.Map{
				"auditRecorded": subscription.FilterFunc(func(payload interface{}, args map[string]interface{}, req subscription.Request) bool {
					action, ok := args["action"].(string)
					if !ok {
						return true
					}
					entry, isEntry := payload.(*store.AuditEntry)
					return isEntry && entry.Action == action
				}),
			},
		},
	}
}

// entryOf returns the entry behind a source value resolved from a list,
// a connection node or a mutation result.
func entryOf(src interface{}) store.AuditEntry {
	switch e := src.(type) {
	case *store.AuditEntry:
		return *e
	case store.AuditEntry:
		return e
	default:
		return store.AuditEntry{}
	}
}

func decodeDetails(raw datatypes.JSON) (interface{}, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decoding details: %w", err)
	}
	return v, nil
}

func parseID(v interface{}) (uint64, error) {
	s, _ := v.(string)
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid audit entry id %q", s)
	}
	return id, nil
}
