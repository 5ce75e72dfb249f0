package rabbitmq

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	EventUserRegistered   = "user_registered"
	EventSignedIn         = "signed_in"
	EventSignedOut        = "signed_out"
	EventChannelCreated   = "channel_created"
	EventMessageSent      = "message_sent"
	EventPreferencesSaved = "preferences_saved"
	EventEmojiUploaded    = "emoji_uploaded"
)

type AuditEnvelope struct {
	SchemaVersion int            `json:"schema_version"`
	EventType     string         `json:"event_type"`
	OccurredAt    string         `json:"occurred_at"`
	Service       string         `json:"service"`
	UserID        string         `json:"user_id,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
}

// Audit records what users did. Publishing failures are logged and never reach
// the caller.
type Audit struct {
	publisher Publisher
	sugar     *zap.SugaredLogger
	now       func() time.Time
}

func NewAudit(publisher Publisher, sugar *zap.SugaredLogger) *Audit {
	return &Audit{publisher: publisher, sugar: sugar, now: time.Now}
}

func (a *Audit) Emit(ctx context.Context, eventType, userID string, payload map[string]any) {
	if a == nil || a.publisher == nil {
		return
	}

	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     eventType,
		OccurredAt:    a.now().UTC().Format(time.RFC3339Nano),
		Service:       "flux",
		UserID:        userID,
		Payload:       payload,
	}

	if err := a.publisher.Publish(context.WithoutCancel(ctx), "audit."+eventType, envelope); err != nil {
		a.sugar.Warnf("audit publish of %s failed: %v", eventType, err)
	}
}
