package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/nats-io/nats.go/jetstream"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/ports"
)

const (
	DurableName    = "social-service"
	handlerTimeout = 30 * time.Second
)

// Subjects consommés (cycle de vie des users, publiés par identity-service)
var Subjects = []string{domain.EventUserCreated, domain.EventUserUpdated, domain.EventUserDeleted}

type userSyncData struct {
	ID          string  `json:"id" validate:"required"`
	Username    string  `json:"username" validate:"required"`
	DisplayName *string `json:"displayName"`
	AvatarURL   *string `json:"avatarUrl"`
	Verified    bool    `json:"verified"`
}

type userUpsertedData struct {
	User *userSyncData `json:"user" validate:"required"`
}

type userDeletedData struct {
	UserID string `json:"userId" validate:"required"`
}

type EventHandler struct {
	sync     ports.ReplicaSync
	validate *validator.Validate
}

func NewEventHandler(sync ports.ReplicaSync) *EventHandler {
	return &EventHandler{sync: sync, validate: validator.New()}
}

// Start crée (ou met à jour) le consumer durable et lance la consommation.
// MaxAckPending = 1: les events d'un même user sont appliqués dans l'ordre.
func (h *EventHandler) Start(ctx context.Context, stream jetstream.Stream) (jetstream.ConsumeContext, error) {
	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:        DurableName,
		FilterSubjects: Subjects,
		AckPolicy:      jetstream.AckExplicitPolicy,
		MaxAckPending:  1,
		AckWait:        2 * handlerTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create consumer: %w", err)
	}

	cc, err := consumer.Consume(h.HandleMsg)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	slog.Info("👂 Listening for events (JetStream)", "durable", DurableName, "subjects", Subjects)
	return cc, nil
}

// HandleMsg: Ack si appliqué, Term sinon (pas de redelivery d'un event invalide)
func (h *EventHandler) HandleMsg(msg jetstream.Msg) {
	// Extraction du trace context propagé par le producteur
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), propagation.HeaderCarrier(msg.Headers()))
	ctx, span := otel.Tracer("social-service").Start(ctx, "process_"+msg.Subject(), trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()

	if err := h.Handle(ctx, msg.Subject(), msg.Data()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.ErrorContext(ctx, "❌ Event processing failed", "subject", msg.Subject(), "error", err)
		if termErr := msg.Term(); termErr != nil {
			slog.ErrorContext(ctx, "Failed to terminate message", "subject", msg.Subject(), "error", termErr)
		}
		return
	}

	if err := msg.Ack(); err != nil {
		slog.ErrorContext(ctx, "Failed to ack message", "subject", msg.Subject(), "error", err)
	}
}

// Handle décode l'enveloppe et route selon le sujet
func (h *EventHandler) Handle(ctx context.Context, subject string, data []byte) error {
	var env domain.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("invalid envelope: %w", err)
	}
	if subject == "" {
		subject = env.Type
	}
	slog.DebugContext(ctx, "📨 Event received", "subject", subject, "event_id", env.ID, "service", env.Service)

	switch subject {
	case domain.EventUserCreated, domain.EventUserUpdated:
		var payload userUpsertedData
		if err := h.decode(env.Data, &payload); err != nil {
			return fmt.Errorf("%s: %w", subject, err)
		}
		u := payload.User
		return h.sync.ApplyUserUpserted(ctx, &domain.Profile{
			ID:          u.ID,
			Username:    u.Username,
			DisplayName: u.DisplayName,
			AvatarURL:   u.AvatarURL,
			Verified:    u.Verified,
		})

	case domain.EventUserDeleted:
		var payload userDeletedData
		if err := h.decode(env.Data, &payload); err != nil {
			return fmt.Errorf("%s: %w", subject, err)
		}
		return h.sync.ApplyUserDeleted(ctx, payload.UserID)

	default:
		slog.WarnContext(ctx, "Ignoring unknown event", "subject", subject)
		return nil
	}
}

func (h *EventHandler) decode(raw json.RawMessage, dest any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing data", domain.ErrInvalidOperation)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	if err := h.validate.Struct(dest); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidOperation, err)
	}
	return nil
}
