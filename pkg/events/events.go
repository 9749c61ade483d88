// Package events is the boundary to downstream effects (fulfillment,
// email). The reconciler publishes settlement outcomes here; consumers
// live outside this service.
package events

import (
	"encoding/json"
	"fmt"

	"storefront-payments/pkg/models"

	"github.com/nats-io/nats.go"
)

const (
	SubjectSettled = "payment.settled"
	SubjectFailed  = "payment.failed"
)

type Publisher interface {
	PublishSettlement(msg models.SettlementMessage) error
}

type NATSPublisher struct {
	conn *nats.Conn
}

func Connect(url string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSPublisher{conn: conn}, nil
}

func (p *NATSPublisher) PublishSettlement(msg models.SettlementMessage) error {
	subject := SubjectSettled
	if msg.Status == models.TxFailed {
		subject = SubjectFailed
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal settlement message: %w", err)
	}

	return p.conn.Publish(subject, data)
}

func (p *NATSPublisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

// NopPublisher drops messages. Used by tooling commands that only read.
type NopPublisher struct{}

func (NopPublisher) PublishSettlement(models.SettlementMessage) error { return nil }
