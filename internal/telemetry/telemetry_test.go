package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "capmd", cfg.ServiceName)
	assert.Equal(t, "dev", cfg.ServiceVersion)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestInitDisabled(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Enabled = false

	shutdown, err := Init(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	// Should be able to call shutdown without error
	err = shutdown(ctx)
	assert.NoError(t, err)

	// Should not be enabled
	assert.False(t, IsEnabled())
}

func TestTracerReturnsNoOp(t *testing.T) {
	// Reset state
	tracer = nil
	enabled = false

	// Without initialization, should return no-op tracer
	tr := Tracer()
	require.NotNil(t, tr)
}

func TestStartSpan(t *testing.T) {
	ctx := context.Background()

	// Even without initialization, StartSpan should work (no-op)
	newCtx, span := StartSpan(ctx, "test.operation")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)

	// Should be able to end the span
	span.End()
}

func TestSpanFromContext(t *testing.T) {
	ctx := context.Background()

	// Should return a span even without active span
	span := SpanFromContext(ctx)
	require.NotNil(t, span)
}

func TestAddEvent(t *testing.T) {
	ctx := context.Background()

	// Should not panic with no active span
	require.NotPanics(t, func() {
		AddEvent(ctx, "test.event")
	})
}

func TestRecordError(t *testing.T) {
	ctx := context.Background()

	// Should not panic with nil error
	require.NotPanics(t, func() {
		RecordError(ctx, nil)
	})

	// Should not panic with error
	require.NotPanics(t, func() {
		RecordError(ctx, errors.New("test error"))
	})
}

func TestSetStatus(t *testing.T) {
	ctx := context.Background()

	// Should not panic
	require.NotPanics(t, func() {
		SetStatus(ctx, codes.Ok, "success")
	})

	require.NotPanics(t, func() {
		SetStatus(ctx, codes.Error, "failed")
	})
}

func TestSetAttributes(t *testing.T) {
	ctx := context.Background()

	// Should not panic
	require.NotPanics(t, func() {
		SetAttributes(ctx, ClientIP("192.168.1.1"))
	})
}

func TestTraceID(t *testing.T) {
	ctx := context.Background()

	// Without active span, should return empty string
	traceID := TraceID(ctx)
	assert.Equal(t, "", traceID)
}

func TestSpanID(t *testing.T) {
	ctx := context.Background()

	// Without active span, should return empty string
	spanID := SpanID(ctx)
	assert.Equal(t, "", spanID)
}

func TestAttributeHelpers(t *testing.T) {
	t.Run("ClientIP", func(t *testing.T) {
		attr := ClientIP("192.168.1.100")
		assert.Equal(t, AttrClientIP, string(attr.Key))
		assert.Equal(t, "192.168.1.100", attr.Value.AsString())
	})

	t.Run("ClientAddr", func(t *testing.T) {
		attr := ClientAddr("192.168.1.100:12345")
		assert.Equal(t, AttrClientAddr, string(attr.Key))
		assert.Equal(t, "192.168.1.100:12345", attr.Value.AsString())
	})

	t.Run("HTTPMethod", func(t *testing.T) {
		attr := HTTPMethod("PUT")
		assert.Equal(t, AttrHTTPMethod, string(attr.Key))
		assert.Equal(t, "PUT", attr.Value.AsString())
	})

	t.Run("HTTPRoute", func(t *testing.T) {
		attr := HTTPRoute("/w/{key}/*")
		assert.Equal(t, AttrHTTPRoute, string(attr.Key))
		assert.Equal(t, "/w/{key}/*", attr.Value.AsString())
	})

	t.Run("HTTPStatus", func(t *testing.T) {
		attr := HTTPStatus(201)
		assert.Equal(t, AttrHTTPStatus, string(attr.Key))
		assert.Equal(t, int64(201), attr.Value.AsInt64())
	})

	t.Run("Workspace", func(t *testing.T) {
		attr := Workspace("ws-1")
		assert.Equal(t, AttrWorkspace, string(attr.Key))
		assert.Equal(t, "ws-1", attr.Value.AsString())
	})

	t.Run("KeyPrefix", func(t *testing.T) {
		attr := KeyPrefix("w_ab")
		assert.Equal(t, AttrKeyPrefix, string(attr.Key))
		assert.Equal(t, "w_ab", attr.Value.AsString())
	})

	t.Run("Path", func(t *testing.T) {
		attr := Path("/docs/guide.md")
		assert.Equal(t, AttrPath, string(attr.Key))
		assert.Equal(t, "/docs/guide.md", attr.Value.AsString())
	})

	t.Run("AppendID", func(t *testing.T) {
		attr := AppendID("a7")
		assert.Equal(t, AttrAppendID, string(attr.Key))
		assert.Equal(t, "a7", attr.Value.AsString())
	})

	t.Run("Event", func(t *testing.T) {
		attr := Event("file.created")
		assert.Equal(t, AttrEvent, string(attr.Key))
		assert.Equal(t, "file.created", attr.Value.AsString())
	})

	t.Run("Size", func(t *testing.T) {
		attr := Size(1048576)
		assert.Equal(t, AttrSize, string(attr.Key))
		assert.Equal(t, int64(1048576), attr.Value.AsInt64())
	})

	t.Run("Count", func(t *testing.T) {
		attr := Count(42)
		assert.Equal(t, AttrCount, string(attr.Key))
		assert.Equal(t, int64(42), attr.Value.AsInt64())
	})

	t.Run("Database", func(t *testing.T) {
		attr := Database("sqlite")
		assert.Equal(t, AttrDatabase, string(attr.Key))
		assert.Equal(t, "sqlite", attr.Value.AsString())
	})

	t.Run("Bucket", func(t *testing.T) {
		attr := Bucket("my-bucket")
		assert.Equal(t, AttrBucket, string(attr.Key))
		assert.Equal(t, "my-bucket", attr.Value.AsString())
	})

	t.Run("StorageKey", func(t *testing.T) {
		attr := StorageKey("path/to/object")
		assert.Equal(t, AttrKey, string(attr.Key))
		assert.Equal(t, "path/to/object", attr.Value.AsString())
	})
}

func TestStartHTTPSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartHTTPSpan(ctx, "PUT", "/w/{key}/*")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()

	// With additional attributes
	newCtx2, span2 := StartHTTPSpan(ctx, "GET", "/r/{key}/*", Workspace("ws-1"), Path("/notes.md"))
	require.NotNil(t, newCtx2)
	require.NotNil(t, span2)
	span2.End()
}

func TestStartStoreSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartStoreSpan(ctx, "upsert", Path("/notes.md"), Size(1024))
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()
}

func TestStartWebhookSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartWebhookSpan(ctx, "file.created", Workspace("ws-1"))
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()
}
