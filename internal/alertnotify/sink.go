// Package alertnotify delivers Alert rows to an optional external channel.
// It never gates the core Alert-saving contract in internal/store — a sink
// returns its delivery error, and the batch orchestrator logs and drops it.
package alertnotify

import (
	"context"

	"github.com/R3E-Network/repo-scout/domain"
)

// Sink delivers an alert to an external channel.
type Sink interface {
	Send(ctx context.Context, alert domain.Alert, repo domain.Repository) error
}

// NoopSink discards every alert; used when no webhook is configured.
type NoopSink struct{}

func (NoopSink) Send(context.Context, domain.Alert, domain.Repository) error { return nil }
