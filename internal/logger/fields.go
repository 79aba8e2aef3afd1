package logger

import "log/slog"

// Standard field keys for structured logging. Use these keys consistently
// across all log statements for log aggregation and querying.
const (
	// Distributed tracing
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// HTTP request
	KeyRequestID = "request_id" // Per-request ID from the middleware chain
	KeyMethod    = "method"     // HTTP method
	KeyRoute     = "route"      // Matched route pattern
	KeyStatus    = "status"     // HTTP status code
	KeyClientIP  = "client_ip"  // Client IP address
	KeyUserAgent = "user_agent" // Client user agent

	// Workspace domain
	KeyWorkspace = "workspace"  // Workspace ID
	KeyKeyPrefix = "key_prefix" // Capability key prefix (never the full key)
	KeyPath      = "path"       // Document or folder path
	KeyOldPath   = "old_path"   // Source path for move/rename
	KeyNewPath   = "new_path"   // Destination path for move/rename
	KeyAppendID  = "append_id"  // Append public ID (a1, a2, ...)
	KeyClaimID   = "claim_id"   // Claim append public ID
	KeyTaskID    = "task_id"    // Task append public ID
	KeyAuthor    = "author"     // Append author
	KeyEvent     = "event"      // Webhook event type
	KeySize      = "size"       // Byte size
	KeyCount     = "count"      // Generic element count

	// Operation metadata
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyAttempt    = "attempt"     // Retry attempt number
	KeyMaxRetries = "max_retries" // Maximum retry attempts

	// Storage
	KeyDatabase = "database" // Database backend: sqlite, postgres
	KeyBucket   = "bucket"   // Object storage bucket
	KeyObjectID = "key"      // Object key in cloud storage
	KeyRegion   = "region"   // Cloud region
)

// Field constructors for type safety.

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// RequestID returns a slog.Attr for the request ID
func RequestID(id string) slog.Attr {
	return slog.String(KeyRequestID, id)
}

// Method returns a slog.Attr for the HTTP method
func Method(m string) slog.Attr {
	return slog.String(KeyMethod, m)
}

// Route returns a slog.Attr for the matched route pattern
func Route(r string) slog.Attr {
	return slog.String(KeyRoute, r)
}

// Status returns a slog.Attr for the HTTP status code
func Status(code int) slog.Attr {
	return slog.Int(KeyStatus, code)
}

// ClientIP returns a slog.Attr for the client IP address
func ClientIP(addr string) slog.Attr {
	return slog.String(KeyClientIP, addr)
}

// UserAgent returns a slog.Attr for the client user agent
func UserAgent(ua string) slog.Attr {
	return slog.String(KeyUserAgent, ua)
}

// Workspace returns a slog.Attr for a workspace ID
func Workspace(id string) slog.Attr {
	return slog.String(KeyWorkspace, id)
}

// KeyPrefix returns a slog.Attr for a capability key prefix
func KeyPrefix(p string) slog.Attr {
	return slog.String(KeyKeyPrefix, p)
}

// Path returns a slog.Attr for a document or folder path
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// OldPath returns a slog.Attr for the source path in move/rename
func OldPath(p string) slog.Attr {
	return slog.String(KeyOldPath, p)
}

// NewPath returns a slog.Attr for the destination path in move/rename
func NewPath(p string) slog.Attr {
	return slog.String(KeyNewPath, p)
}

// AppendID returns a slog.Attr for an append public ID
func AppendID(id string) slog.Attr {
	return slog.String(KeyAppendID, id)
}

// ClaimID returns a slog.Attr for a claim public ID
func ClaimID(id string) slog.Attr {
	return slog.String(KeyClaimID, id)
}

// TaskID returns a slog.Attr for a task public ID
func TaskID(id string) slog.Attr {
	return slog.String(KeyTaskID, id)
}

// Author returns a slog.Attr for an append author
func Author(a string) slog.Attr {
	return slog.String(KeyAuthor, a)
}

// Event returns a slog.Attr for a webhook event type
func Event(e string) slog.Attr {
	return slog.String(KeyEvent, e)
}

// Size returns a slog.Attr for a byte size
func Size(n int64) slog.Attr {
	return slog.Int64(KeySize, n)
}

// Count returns a slog.Attr for an element count
func Count(n int) slog.Attr {
	return slog.Int(KeyCount, n)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Attempt returns a slog.Attr for a retry attempt number
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// MaxRetries returns a slog.Attr for maximum retry attempts
func MaxRetries(n int) slog.Attr {
	return slog.Int(KeyMaxRetries, n)
}

// Database returns a slog.Attr for the database backend name
func Database(name string) slog.Attr {
	return slog.String(KeyDatabase, name)
}

// Bucket returns a slog.Attr for an object storage bucket
func Bucket(name string) slog.Attr {
	return slog.String(KeyBucket, name)
}

// ObjectKey returns a slog.Attr for an object key in cloud storage
func ObjectKey(k string) slog.Attr {
	return slog.String(KeyObjectID, k)
}

// Region returns a slog.Attr for a cloud region
func Region(r string) slog.Attr {
	return slog.String(KeyRegion, r)
}
