package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/gqlerrors"
	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Metrics for GraphQL requests.
var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gqutils_http_graphql_requests_total",
			Help: "Total number of GraphQL requests",
		},
		[]string{"transport", "operation", "status"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gqutils_http_graphql_request_duration_seconds",
			Help:    "GraphQL request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"transport"},
	)
)

// APQ error messages and codes understood by Apollo clients.
const (
	errPersistedQueryNotFound  = "PersistedQueryNotFound"
	codePersistedQueryNotFound = "PERSISTED_QUERY_NOT_FOUND"
)

var errSubscriptionOverHTTP = errors.New("subscriptions require a graphql-ws websocket connection")

// request is a GraphQL request as sent over HTTP and websockets.
type request struct {
	Query         string                 `json:"query"`
	Variables     map[string]interface{} `json:"variables"`
	OperationName string                 `json:"operationName"`
	Extensions    struct {
		PersistedQuery *persistedQuery `json:"persistedQuery"`
	} `json:"extensions"`
}

type persistedQuery struct {
	Version    int    `json:"version"`
	Sha256Hash string `json:"sha256Hash"`
}

// serveHTTP handles GraphQL over HTTP GET and POST.
func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		requestDuration.WithLabelValues("http").Observe(time.Since(start).Seconds())
	}()

	if origin := r.Header.Get("Origin"); origin != "" && s.allowedOrigin(r) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	}

	var req request
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodGet:
		if err := decodeQueryParams(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "")
			return
		}
	case http.MethodPost:
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("decoding request body: %v", err), "")
			return
		}
	default:
		w.Header().Set("Allow", "GET, POST, OPTIONS")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	if msg, code := s.resolvePersisted(r.Context(), &req); msg != "" {
		requestsTotal.WithLabelValues("http", "", "apq_miss").Inc()
		writeError(w, http.StatusOK, msg, code)
		return
	}

	result, opType := s.execute(r.Context(), req, false)

	status := "success"
	if len(result.Errors) > 0 {
		status = "error"
	}
	requestsTotal.WithLabelValues("http", opType, status).Inc()

	writeJSON(w, http.StatusOK, result)
}

// resolvePersisted applies automatic persisted queries. It returns a non-empty
// message and code when the request cannot be served.
func (s *Server) resolvePersisted(ctx context.Context, req *request) (string, string) {
	pq := req.Extensions.PersistedQuery
	if pq == nil {
		return "", ""
	}
	if pq.Version != 1 {
		return "unsupported persisted query version", ""
	}

	if req.Query == "" {
		query, ok := s.apq.Get(ctx, pq.Sha256Hash)
		if !ok {
			return errPersistedQueryNotFound, codePersistedQueryNotFound
		}
		req.Query = query
		return "", ""
	}

	sum := sha256.Sum256([]byte(req.Query))
	if hex.EncodeToString(sum[:]) != pq.Sha256Hash {
		return "provided persisted query hash does not match query", ""
	}
	s.apq.Add(ctx, pq.Sha256Hash, req.Query)
	return "", ""
}

// execute runs a request against the current schema. Subscriptions are
// rejected unless allowSubscription is set, in which case the caller is
// expected to have routed them elsewhere.
func (s *Server) execute(ctx context.Context, req request, allowSubscription bool) (*graphql.Result, string) {
	current := s.engine.Current()

	doc, err := parser.Parse(parser.ParseParams{Source: req.Query})
	if err != nil {
		return &graphql.Result{Errors: gqlerrors.FormatErrors(err)}, ""
	}

	vr := graphql.ValidateDocument(&current.Schema.GraphQL, doc, nil)
	if !vr.IsValid {
		return &graphql.Result{Errors: vr.Errors}, ""
	}

	opType := operationType(doc, req.OperationName)
	if opType == ast.OperationTypeSubscription && !allowSubscription {
		return &graphql.Result{Errors: gqlerrors.FormatErrors(errSubscriptionOverHTTP)}, opType
	}

	result := graphql.Execute(graphql.ExecuteParams{
		Schema:        current.Schema.GraphQL,
		AST:           doc,
		OperationName: req.OperationName,
		Args:          req.Variables,
		Context:       ctx,
	})

	log.Debug().
		Str("operation", req.OperationName).
		Str("type", opType).
		Int("errors", len(result.Errors)).
		Msg("executed GraphQL request")

	return result, opType
}

// operationType returns the type of the selected operation, or "" when the
// selection is ambiguous.
func operationType(doc *ast.Document, name string) string {
	var found *ast.OperationDefinition
	for _, def := range doc.Definitions {
		op, ok := def.(*ast.OperationDefinition)
		if !ok {
			continue
		}
		if name == "" {
			if found != nil {
				return ""
			}
			found = op
			continue
		}
		if op.Name != nil && op.Name.Value == name {
			return op.Operation
		}
	}
	if found == nil {
		return ""
	}
	return found.Operation
}

func decodeQueryParams(r *http.Request, req *request) error {
	q := r.URL.Query()
	req.Query = q.Get("query")
	req.OperationName = q.Get("operationName")

	if v := q.Get("variables"); v != "" {
		if err := json.Unmarshal([]byte(v), &req.Variables); err != nil {
			return fmt.Errorf("decoding variables: %w", err)
		}
	}
	if v := q.Get("extensions"); v != "" {
		if err := json.Unmarshal([]byte(v), &req.Extensions); err != nil {
			return fmt.Errorf("decoding extensions: %w", err)
		}
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	fe := gqlerrors.FormattedError{Message: message}
	if code != "" {
		fe.Extensions = map[string]interface{}{"code": code}
	}
	writeJSON(w, status, &graphql.Result{Errors: []gqlerrors.FormattedError{fe}})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("writing response")
	}
}
