package events

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// LogEmitter writes each event as a structured log line.
type LogEmitter struct{}

func (LogEmitter) Emit(event Event) {
	log.Info().
		Str("subject", event.Subject()).
		Interface("event", event).
		Msg("Event emitted")
}

// NATSEmitter publishes JSON-encoded events to a NATS subject per
// event type. Publish failures are logged and dropped; indexers that
// need gapless history reconcile from the trade records.
type NATSEmitter struct {
	conn *nats.Conn
}

func NewNATSEmitter(url string) (*NATSEmitter, error) {
	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.RetryOnFailedConnect(true),
	)
	if err != nil {
		return nil, err
	}
	return &NATSEmitter{conn: conn}, nil
}

func (e *NATSEmitter) Emit(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("subject", event.Subject()).Msg("Failed to encode event")
		return
	}
	if err := e.conn.Publish(event.Subject(), payload); err != nil {
		log.Warn().Err(err).Str("subject", event.Subject()).Msg("Failed to publish event")
	}
}

func (e *NATSEmitter) Close() {
	if e.conn != nil {
		e.conn.Close()
	}
}

// Fanout emits to every wrapped emitter in order.
type Fanout []Emitter

func (f Fanout) Emit(event Event) {
	for _, e := range f {
		e.Emit(event)
	}
}
