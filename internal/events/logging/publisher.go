// Package logging publishes ledger events to the structured log. It stands in
// for a broker in development and single-node deployments.
package logging

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	interfaces "github.com/sheikh-saqib/trading-ledger/internal/interfaces"
)

type Publisher struct {
	log zerolog.Logger
}

func NewPublisher(log zerolog.Logger) *Publisher {
	return &Publisher{log: log.With().Str("component", "events").Logger()}
}

func (p *Publisher) Publish(ctx context.Context, key string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	e := p.log.Info().Str("key", key)
	if typed, ok := event.(interface{ Type() string }); ok {
		e = e.Str("event_type", typed.Type())
	}
	e.RawJSON("event", data).Msg("Ledger event")
	return nil
}

var _ interfaces.EventPublisher = (*Publisher)(nil)
