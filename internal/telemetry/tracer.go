package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for spans. HTTP keys follow OpenTelemetry semantic
// conventions; workspace-domain keys use the "capmd." prefix.
const (
	// Client attributes
	AttrClientIP   = "client.ip"
	AttrClientAddr = "client.address"

	// HTTP attributes
	AttrHTTPMethod = "http.request.method"
	AttrHTTPRoute  = "http.route"
	AttrHTTPStatus = "http.response.status_code"

	// Workspace domain attributes
	AttrWorkspace = "capmd.workspace"
	AttrKeyPrefix = "capmd.key_prefix"
	AttrPath      = "capmd.path"
	AttrAppendID  = "capmd.append_id"
	AttrEvent     = "capmd.event"
	AttrAuthor    = "capmd.author"
	AttrSize      = "capmd.size"
	AttrCount     = "capmd.count"

	// Storage backend attributes
	AttrDatabase = "db.system"
	AttrBucket   = "storage.bucket"
	AttrKey      = "storage.key"
	AttrRegion   = "storage.region"
)

// Span names for operations.
// Format: <component>.<operation>
const (
	// Root span for HTTP request processing
	SpanHTTPRequest = "http.request"

	// Store operations
	SpanStoreUpsert  = "store.upsert"
	SpanStoreRead    = "store.read"
	SpanStoreDelete  = "store.delete"
	SpanStoreAppend  = "store.append"
	SpanStoreSearch  = "store.search"
	SpanStoreSweep   = "store.sweep"
	SpanStoreMigrate = "store.migrate"

	// Background work
	SpanWebhookDeliver = "webhook.deliver"
	SpanAuditFlush     = "audit.flush"
	SpanExportBuild    = "export.build"
	SpanExportOffload  = "export.offload"
)

// ClientIP returns an attribute for client IP address
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

// ClientAddr returns an attribute for full client address
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// HTTPMethod returns an attribute for the HTTP request method
func HTTPMethod(m string) attribute.KeyValue {
	return attribute.String(AttrHTTPMethod, m)
}

// HTTPRoute returns an attribute for the matched route pattern
func HTTPRoute(r string) attribute.KeyValue {
	return attribute.String(AttrHTTPRoute, r)
}

// HTTPStatus returns an attribute for the HTTP response status code
func HTTPStatus(code int) attribute.KeyValue {
	return attribute.Int(AttrHTTPStatus, code)
}

// Workspace returns an attribute for the workspace ID
func Workspace(id string) attribute.KeyValue {
	return attribute.String(AttrWorkspace, id)
}

// KeyPrefix returns an attribute for a capability key prefix
func KeyPrefix(p string) attribute.KeyValue {
	return attribute.String(AttrKeyPrefix, p)
}

// Path returns an attribute for a document or folder path
func Path(p string) attribute.KeyValue {
	return attribute.String(AttrPath, p)
}

// AppendID returns an attribute for an append public ID
func AppendID(id string) attribute.KeyValue {
	return attribute.String(AttrAppendID, id)
}

// Event returns an attribute for a webhook event type
func Event(e string) attribute.KeyValue {
	return attribute.String(AttrEvent, e)
}

// Author returns an attribute for an append author
func Author(a string) attribute.KeyValue {
	return attribute.String(AttrAuthor, a)
}

// Size returns an attribute for a byte size
func Size(n int64) attribute.KeyValue {
	return attribute.Int64(AttrSize, n)
}

// Count returns an attribute for an element count
func Count(n int) attribute.KeyValue {
	return attribute.Int(AttrCount, n)
}

// Database returns an attribute for the database backend
func Database(name string) attribute.KeyValue {
	return attribute.String(AttrDatabase, name)
}

// Bucket returns an attribute for an object storage bucket
func Bucket(name string) attribute.KeyValue {
	return attribute.String(AttrBucket, name)
}

// StorageKey returns an attribute for an object key
func StorageKey(key string) attribute.KeyValue {
	return attribute.String(AttrKey, key)
}

// Region returns an attribute for a cloud region
func Region(region string) attribute.KeyValue {
	return attribute.String(AttrRegion, region)
}

// StartHTTPSpan starts the root span for an HTTP request.
func StartHTTPSpan(ctx context.Context, method, route string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		HTTPMethod(method),
		HTTPRoute(route),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, SpanHTTPRequest, trace.WithAttributes(allAttrs...))
}

// StartStoreSpan starts a span for a store operation.
func StartStoreSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, "store."+operation, trace.WithAttributes(attrs...))
}

// StartWebhookSpan starts a span for a webhook delivery.
func StartWebhookSpan(ctx context.Context, event string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{Event(event)}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, SpanWebhookDeliver, trace.WithAttributes(allAttrs...))
}
