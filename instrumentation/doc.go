// Package instrumentation provides OpenTelemetry instrumentation for the
// authorization server.
//
// # Quick Start
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		Enabled:         true,
//		ServiceName:     "oauth-server",
//		ServiceVersion:  "1.0.0",
//		MetricsExporter: instrumentation.ExporterPrometheus,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Shutdown(context.Background())
//
//	srv.SetInstrumentation(inst)
//	store.SetInstrumentation(inst)
//
//	http.Handle("/metrics", promhttp.Handler())
//
// With Enabled false every provider is a no-op and recording costs nothing.
//
// # Available Metrics
//
// HTTP Layer:
//   - oauth.http.requests.total{method, endpoint, status}
//   - oauth.http.request.duration{endpoint} (ms)
//
// Authorization:
//   - oauth.authorize.requests{client_id, response_type, outcome}
//   - oauth.approvals.processed{client_id, approved}
//   - oauth.tokens.issued{client_id, grant_type}
//   - oauth.token.errors{grant_type, error}
//   - oauth.bearer.verified{result}
//
// Security:
//   - oauth.rate_limit.exceeded{limiter_type}
//   - oauth.code.reuse_detected
//   - oauth.client.auth_failures{reason}
//   - oauth.audit.events.total{event_type}
//
// Storage:
//   - storage.operation.total{operation, result}
//   - storage.operation.duration{operation} (ms)
//   - storage.clients.count, storage.approvals.count, storage.codes.count,
//     storage.access_tokens.count, storage.refresh_tokens.count
//
// # Traces
//
// Spans are created per operation ("authorize", "approve", "token.<grant>",
// "storage.<op>") and carry the attribute keys defined in tracing.go. Credential
// values are never attached to spans.
package instrumentation
