package rest

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const ctxUserIDKey = "userID"

var errMissingSubject = errors.New("token has no user id")

// AccessClaims: les tokens de l'identity-service portent user_id + sub,
// les anciens clients envoient encore id / userId.
type AccessClaims struct {
	UserID       string `json:"user_id,omitempty"`
	LegacyID     string `json:"id,omitempty"`
	LegacyUserID string `json:"userId,omitempty"`
	Username     string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

func (c *AccessClaims) subject() string {
	for _, id := range []string{c.UserID, c.Subject, c.LegacyID, c.LegacyUserID} {
		if id != "" {
			return id
		}
	}
	return ""
}

// TokenVerifier vérifie les access tokens RS256 avec la clé PUBLIQUE seule
type TokenVerifier struct {
	publicKey *rsa.PublicKey
}

func NewTokenVerifier(publicKeyPEM []byte) (*TokenVerifier, error) {
	pub, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	return &TokenVerifier{publicKey: pub}, nil
}

// Verify renvoie l'id de l'utilisateur authentifié
func (v *TokenVerifier) Verify(tokenString string) (string, error) {
	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		// Refuse tout autre algo que RSA (none / HS256 forgé avec la clé publique)
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.publicKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}

	id := claims.subject()
	if id == "" {
		return "", errMissingSubject
	}
	return id, nil
}

// AuthMiddleware exige un header "Bearer <token>" valide
func AuthMiddleware(v *TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortUnauthorized(c, "Authorization header is required")
			return
		}

		tokenStr, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenStr == "" {
			abortUnauthorized(c, "Invalid authorization header")
			return
		}

		userID, err := v.Verify(tokenStr)
		if err != nil {
			abortUnauthorized(c, "Invalid or expired token")
			return
		}

		c.Set(ctxUserIDKey, userID)
		c.Next()
	}
}

// currentUserID lit l'id posé par AuthMiddleware
func currentUserID(c *gin.Context) string {
	return c.GetString(ctxUserIDKey)
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, failure("UNAUTHORIZED", message))
}
