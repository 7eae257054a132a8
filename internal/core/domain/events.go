package domain

import (
	"encoding/json"
	"time"
)

// Routing keys (= sujets NATS)
const (
	EventUserFollowed = "user.followed"
	EventUserBlocked  = "user.blocked"
	EventUserCreated  = "user.created"
	EventUserUpdated  = "user.updated"
	EventUserDeleted  = "user.deleted"
)

// UserFollowed est publié après un follow réussi
type UserFollowed struct {
	FollowerID       string
	FollowingID      string
	FollowerUsername string
	Timestamp        time.Time
}

// UserBlocked est publié après un blocage réussi
type UserBlocked struct {
	BlockerID string
	BlockedID string
	Timestamp time.Time
}

// Envelope est le format commun de tous les events du bus
type Envelope struct {
	ID        string          `json:"id"` // UUID, sert aussi de clé de dédup JetStream
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	Service   string          `json:"service"`
}
