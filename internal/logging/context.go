package logging

import (
	"context"
	"fmt"
	"regexp"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Repository identifies the repository and index core a command works on.
type Repository struct {
	// Endpoint is host:port/sslPort.
	Endpoint string
	Core     string
}

type ctxKey int

const (
	repositoryKey ctxKey = iota
	operationKey
	requestIDKey
)

var (
	endpointChars = regexp.MustCompile(`^[a-zA-Z0-9._:/\[\]-]{1,255}$`)
	nameChars     = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,128}$`)
)

// mustMatch panics unless value matches re. Context values end up as log
// fields, so only short identifier-like strings are accepted.
func mustMatch(re *regexp.Regexp, what, value string) {
	if !re.MatchString(value) {
		panic(fmt.Sprintf("logging: invalid %s %q", what, value))
	}
}

// WithRepository returns a context whose log entries name repo.
// It panics if repo is nil or either field is empty or malformed.
func WithRepository(ctx context.Context, repo *Repository) context.Context {
	if repo == nil {
		panic("logging: nil repository")
	}
	mustMatch(endpointChars, "repository endpoint", repo.Endpoint)
	mustMatch(nameChars, "core name", repo.Core)
	return context.WithValue(ctx, repositoryKey, repo)
}

// RepositoryFromContext returns the repository set by WithRepository, or nil.
func RepositoryFromContext(ctx context.Context) *Repository {
	repo, _ := ctx.Value(repositoryKey).(*Repository)
	return repo
}

// WithOperation returns a context whose log entries name the tracking
// operation, such as "GetTransactions".
func WithOperation(ctx context.Context, op string) context.Context {
	mustMatch(nameChars, "operation", op)
	return context.WithValue(ctx, operationKey, op)
}

// OperationFromContext returns the operation set by WithOperation, or "".
func OperationFromContext(ctx context.Context) string {
	op, _ := ctx.Value(operationKey).(string)
	return op
}

// WithRequestID returns a context carrying id. The transport sends it as the
// X-Request-ID header.
func WithRequestID(ctx context.Context, id string) context.Context {
	mustMatch(nameChars, "request id", id)
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the id set by WithRequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// ContextFields returns the correlation fields found in ctx.
func ContextFields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}
	if repo := RepositoryFromContext(ctx); repo != nil {
		fields = append(fields,
			zap.String("repository.endpoint", repo.Endpoint),
			zap.String("repository.core", repo.Core),
		)
	}
	if op := OperationFromContext(ctx); op != "" {
		fields = append(fields, zap.String("tracking.operation", op))
	}
	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request.id", id))
	}
	return fields
}
