package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/smartpot-core/internal/infrastructure/mqtt"
)

// mqttIngestTimeout bounds one ingestion triggered by a broker message.
const mqttIngestTimeout = 10 * time.Second

// HandleMQTT ingests a sample published on smartpot/telemetry/{serial}.
// It has the mqtt.MessageHandler signature.
//
// The serial in the topic is authoritative: a payload without
// smartpot_serial takes it from the topic, and a payload naming a
// different pot is rejected.
func (p *Pipeline) HandleMQTT(topic string, payload []byte) error {
	serial, ok := mqtt.Topics{}.ParseTelemetry(topic)
	if !ok {
		return fmt.Errorf("%w: unexpected telemetry topic %q", ErrInvalidInput, topic)
	}

	var sample Sample
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&sample); err != nil {
		return fmt.Errorf("%w: decoding telemetry payload: %w", ErrInvalidInput, err)
	}

	switch sample.SmartPotSerial {
	case "":
		sample.SmartPotSerial = serial
	case serial:
	default:
		return fmt.Errorf("%w: payload serial %q does not match topic serial %q",
			ErrInvalidInput, sample.SmartPotSerial, serial)
	}

	ctx, cancel := context.WithTimeout(context.Background(), mqttIngestTimeout)
	defer cancel()

	if _, err := p.Ingest(ctx, sample); err != nil {
		return fmt.Errorf("ingesting telemetry from %s: %w", serial, err)
	}
	return nil
}
