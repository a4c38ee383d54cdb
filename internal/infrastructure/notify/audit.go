// Package notify publishes search status-change events for downstream
// consumers. Delivery is fire-and-forget: a publish failure is logged
// and never surfaced to the state transition that produced the event.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/frontrangetitle/titleworks/internal/core/domain"
	"github.com/frontrangetitle/titleworks/internal/core/ports"
)

// Publisher is the core NATS publish surface the sink needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

type AuditSink struct {
	publisher Publisher
	subject   string
	logger    *slog.Logger
}

var _ ports.AuditSink = (*AuditSink)(nil)

func NewAuditSink(publisher Publisher, subject string, logger *slog.Logger) *AuditSink {
	if subject == "" {
		subject = "audit.search_status"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditSink{publisher: publisher, subject: subject, logger: logger}
}

type statusEvent struct {
	SearchID   string    `json:"search_id"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	Message    string    `json:"message,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (s *AuditSink) SearchStatusChanged(_ context.Context, searchID string, from, to domain.SearchStatus, message string) {
	event := statusEvent{
		SearchID:   searchID,
		FromStatus: string(from),
		ToStatus:   string(to),
		Message:    message,
		OccurredAt: time.Now().UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("audit_event_encode_failed", "search_id", searchID, "error", err)
		return
	}
	if err := s.publisher.Publish(s.subject, data); err != nil {
		s.logger.Warn("audit_event_publish_failed", "search_id", searchID, "error", err)
	}
}

// NopSink drops events; used when no broker is configured.
type NopSink struct{}

func (NopSink) SearchStatusChanged(context.Context, string, domain.SearchStatus, domain.SearchStatus, string) {
}
