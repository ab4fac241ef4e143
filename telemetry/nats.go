package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	nats "github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/propagation"
)

var propagator = propagation.TraceContext{}

// natsPayload is the wire form published per run.
type natsPayload struct {
	ExportedAt time.Time `json:"exported_at"`
	Summary    Summary   `json:"summary"`
	Records    []Record  `json:"records"`
}

// NATSExporter publishes accumulated run telemetry as a single JSON message.
// Trace context is injected into the message headers so consumers can join
// the run's trace.
type NATSExporter struct {
	nc      *nats.Conn
	subject string
}

// NewNATSExporter builds an exporter publishing to subject on nc.
func NewNATSExporter(nc *nats.Conn, subject string) *NATSExporter {
	if subject == "" {
		subject = "taskmesh.telemetry"
	}
	return &NATSExporter{nc: nc, subject: subject}
}

func (e *NATSExporter) Export(ctx context.Context, records []Record) error {
	payload := natsPayload{
		ExportedAt: time.Now(),
		Summary:    Summarize(records),
		Records:    records,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telemetry payload: %w", err)
	}
	hdr := nats.Header{}
	propagator.Inject(ctx, propagation.HeaderCarrier(hdr))
	msg := &nats.Msg{Subject: e.subject, Data: data, Header: hdr}
	if err := e.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish telemetry: %w", err)
	}
	return nil
}
