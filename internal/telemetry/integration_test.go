package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestStageSpansJoinRequestTrace checks that spans started inside a handler
// land in the inbound request's trace.
func TestStageSpansJoinRequestTrace(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(Propagator())
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	r := mux.NewRouter()
	r.Use(otelmux.Middleware("smart-voice-api"))
	r.HandleFunc("/api/v1/voice-notes/process", func(w http.ResponseWriter, r *http.Request) {
		_, span := otel.Tracer("test/pipeline").Start(r.Context(), "pipeline.process")
		span.End()
		w.WriteHeader(http.StatusOK)
	}).Methods("POST")

	const incomingTrace = "4bf92f3577b34da6a3ce929d0e0e4736"
	tests := []struct {
		name        string
		traceParent string
	}{
		{name: "new trace"},
		{name: "continues caller trace", traceParent: "00-" + incomingTrace + "-00f067aa0ba902b7-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exporter.Reset()

			req := httptest.NewRequest(http.MethodPost, "/api/v1/voice-notes/process", nil)
			if tt.traceParent != "" {
				req.Header.Set("traceparent", tt.traceParent)
			}
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)
			if rr.Code != http.StatusOK {
				t.Fatalf("Expected status OK, got %d", rr.Code)
			}

			spans := exporter.GetSpans()
			if len(spans) != 2 {
				t.Fatalf("Expected server and stage spans, got %d", len(spans))
			}
			stage, server := spans[0], spans[1]
			if stage.Name != "pipeline.process" {
				t.Fatalf("Expected stage span first, got %q", stage.Name)
			}
			if stage.SpanContext.TraceID() != server.SpanContext.TraceID() {
				t.Error("Expected stage span in the request trace")
			}
			if stage.Parent.SpanID() != server.SpanContext.SpanID() {
				t.Error("Expected stage span to be a child of the server span")
			}
			if tt.traceParent != "" && server.SpanContext.TraceID().String() != incomingTrace {
				t.Errorf("Expected trace %s, got %s", incomingTrace, server.SpanContext.TraceID())
			}
		})
	}
}
