// Package obsv specifies the interface contracts for two out-of-scope
// telemetry collaborators: Prometheus metrics emission and MQTT ingress.
// Neither pulls in a third-party client here — this package specifies
// only the Go interface a real implementation would satisfy, the way
// internal/auth.KeyStore specifies the Postgres lookup without importing
// pgx in the auth package itself.
package obsv

import (
	"context"
	"time"
)

// Metrics is what internal/httpapi reports ingestion outcomes to. A real implementation wraps prometheus/client_golang
// counters and histograms; NoopMetrics, the default, discards everything
// so the core never requires a Prometheus registry to run or be tested.
type Metrics interface {
	IngestCompleted(status string, written, failed, silent int)
	IngestDuration(d time.Duration)
	AuthFailure(code string)
}

// NoopMetrics discards every observation.
type NoopMetrics struct{}

func (NoopMetrics) IngestCompleted(status string, written, failed, silent int) {}
func (NoopMetrics) IngestDuration(d time.Duration)                             {}
func (NoopMetrics) AuthFailure(code string)                                    {}

// MQTTIngress is the contract a real MQTT bridge would implement to feed
// raw payloads into the same ingestion path as the HTTP surface. It is
// never constructed by this repo; internal/ingest.Handler.Ingest is the
// single entry point any ingress, HTTP or MQTT, must call into.
type MQTTIngress interface {
	// Subscribe starts consuming payloads from topic and calls handle for
	// each message body received, until ctx is cancelled.
	Subscribe(ctx context.Context, topic string, handle func(ctx context.Context, userID int, body []byte)) error
}
