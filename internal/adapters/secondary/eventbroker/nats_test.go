package eventbroker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/domain"
)

type mockJetStream struct {
	mock.Mock
}

func (m *mockJetStream) PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	args := m.Called(ctx, msg, opts)
	if ack := args.Get(0); ack != nil {
		return ack.(*jetstream.PubAck), args.Error(1)
	}
	return nil, args.Error(1)
}

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestPublishUserFollowed(t *testing.T) {
	js := new(mockJetStream)
	p := newPublisher(js, "social-service")
	p.now = func() time.Time { return fixedNow }

	var sent *nats.Msg
	js.On("PublishMsg", mock.Anything, mock.AnythingOfType("*nats.Msg"), mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(*nats.Msg) }).
		Return(&jetstream.PubAck{Stream: StreamName, Sequence: 7}, nil).
		Once()

	err := p.PublishUserFollowed(context.Background(), domain.UserFollowed{
		FollowerID:       "alice",
		FollowingID:      "bob",
		FollowerUsername: "alice_w",
		Timestamp:        fixedNow,
	})
	require.NoError(t, err)
	js.AssertExpectations(t)

	require.NotNil(t, sent)
	assert.Equal(t, "user.followed", sent.Subject)

	var env domain.Envelope
	require.NoError(t, json.Unmarshal(sent.Data, &env))
	assert.NotEmpty(t, env.ID)
	assert.Equal(t, "user.followed", env.Type)
	assert.Equal(t, "social-service", env.Service)
	assert.True(t, fixedNow.Equal(env.Timestamp))

	var data map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "alice", data["follower_id"])
	assert.Equal(t, "bob", data["following_id"])
	assert.Equal(t, "alice_w", data["follower_username"])
}

func TestPublishUserBlocked(t *testing.T) {
	js := new(mockJetStream)
	p := newPublisher(js, "social-service")

	var sent *nats.Msg
	js.On("PublishMsg", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(*nats.Msg) }).
		Return(&jetstream.PubAck{}, nil)

	require.NoError(t, p.PublishUserBlocked(context.Background(), domain.UserBlocked{BlockerID: "a", BlockedID: "b"}))

	var env domain.Envelope
	require.NoError(t, json.Unmarshal(sent.Data, &env))
	assert.Equal(t, "user.blocked", sent.Subject)
	assert.JSONEq(t, `{"blockerId":"a","blockedId":"b","timestamp":"0001-01-01T00:00:00Z"}`, string(env.Data))
}

func TestPublish_Error(t *testing.T) {
	js := new(mockJetStream)
	p := newPublisher(js, "social-service")
	js.On("PublishMsg", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("no responders"))

	err := p.PublishUserBlocked(context.Background(), domain.UserBlocked{BlockerID: "a", BlockedID: "b"})
	assert.ErrorContains(t, err, "no responders")
}
