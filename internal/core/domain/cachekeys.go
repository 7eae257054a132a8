package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	ListTTL            = 300 * time.Second
	StatsTTL           = 300 * time.Second
	RecommendationsTTL = 600 * time.Second
)

func FollowersKey(userID string, page, limit int) string {
	return fmt.Sprintf("followers:%s:%d:%d", userID, page, limit)
}

func FollowingKey(userID string, page, limit int) string {
	return fmt.Sprintf("following:%s:%d:%d", userID, page, limit)
}

func StatsKey(userID string) string {
	return "stats:" + userID
}

func RecommendationsKey(userID string) string {
	return "recommendations:" + userID
}

// UserKeyPattern matche toutes les clés qui contiennent l'id (invalidation large).
// Les méta-caractères glob de Redis sont échappés.
func UserKeyPattern(userID string) string {
	return "*" + globEscaper.Replace(userID) + "*"
}

var globEscaper = strings.NewReplacer(
	`\`, `\\`,
	`*`, `\*`,
	`?`, `\?`,
	`[`, `\[`,
	`]`, `\]`,
)
