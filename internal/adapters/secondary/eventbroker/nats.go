package eventbroker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/ports"
)

const (
	StreamName     = "PULSE_EVENTS"
	SubjectPattern = "user.>" // Tous les events user.*
)

// EnsureStream crée le stream s'il n'existe pas (Idempotent)
func EnsureStream(ctx context.Context, js jetstream.JetStream) (jetstream.Stream, error) {
	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       StreamName,
		Subjects:   []string{SubjectPattern},
		Storage:    jetstream.FileStorage, // Persistance sur disque
		Replicas:   1,                     // 3 en cluster
		Duplicates: 2 * time.Minute,       // Fenêtre de dédup par Nats-Msg-Id
	})
	if err != nil {
		return nil, fmt.Errorf("create stream: %w", err)
	}
	return stream, nil
}

// msgPublisher est la partie de jetstream.JetStream utilisée ici
type msgPublisher interface {
	PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

type NatsPublisher struct {
	js      msgPublisher
	service string
	now     func() time.Time
}

var _ ports.EventPublisher = (*NatsPublisher)(nil)

func NewNatsPublisher(js jetstream.JetStream, service string) *NatsPublisher {
	return newPublisher(js, service)
}

func newPublisher(js msgPublisher, service string) *NatsPublisher {
	return &NatsPublisher{js: js, service: service, now: time.Now}
}

// Payloads (contrat implicite avec notification-service)
type userFollowedData struct {
	FollowerID       string    `json:"follower_id"`
	FollowingID      string    `json:"following_id"`
	FollowerUsername string    `json:"follower_username"`
	Timestamp        time.Time `json:"timestamp"`
}

type userBlockedData struct {
	BlockerID string    `json:"blockerId"`
	BlockedID string    `json:"blockedId"`
	Timestamp time.Time `json:"timestamp"`
}

func (p *NatsPublisher) PublishUserFollowed(ctx context.Context, e domain.UserFollowed) error {
	return p.publish(ctx, domain.EventUserFollowed, userFollowedData{
		FollowerID:       e.FollowerID,
		FollowingID:      e.FollowingID,
		FollowerUsername: e.FollowerUsername,
		Timestamp:        e.Timestamp,
	})
}

func (p *NatsPublisher) PublishUserBlocked(ctx context.Context, e domain.UserBlocked) error {
	return p.publish(ctx, domain.EventUserBlocked, userBlockedData{
		BlockerID: e.BlockerID,
		BlockedID: e.BlockedID,
		Timestamp: e.Timestamp,
	})
}

func (p *NatsPublisher) publish(ctx context.Context, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	env := domain.Envelope{
		ID:        uuid.NewString(),
		Type:      subject,
		Data:      data,
		Timestamp: p.now().UTC(),
		Service:   p.service,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    body,
		Header:  nats.Header{},
	}
	// Injection du trace context dans les headers NATS
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(msg.Header))

	// Le serveur confirme la persistance. Le MsgID évite les doublons en cas de retry.
	ack, err := p.js.PublishMsg(ctx, msg, jetstream.WithMsgID(env.ID))
	if err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}

	slog.DebugContext(ctx, "📢 Event published", "subject", subject, "event_id", env.ID, "seq", ack.Sequence)
	return nil
}
