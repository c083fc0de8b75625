package utils

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	redis "github.com/redis/go-redis/v9"

	"github.com/afanelli-PAM/il-mondo-di-lulz/database"
	"github.com/afanelli-PAM/il-mondo-di-lulz/models"
)

// RedisClient is the optional shared Redis client used for token revocation.
// It stays nil when REDIS_ADDR is not configured; revocation then falls back
// to the revoked_tokens table.
var RedisClient *redis.Client

func init() {
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return
	}
	opts := &redis.Options{Addr: addr}
	if p := os.Getenv("REDIS_PASS"); p != "" {
		opts.Password = p
	}
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		var dbn int
		_, _ = fmt.Sscanf(dbStr, "%d", &dbn)
		opts.DB = dbn
	}
	rc := redis.NewClient(opts)
	if err := rc.Ping(context.Background()).Err(); err != nil {
		log.Printf("[auth] redis ping failed, revocation falls back to DB: %v", err)
		return
	}
	RedisClient = rc
}

type contextKey string

const (
	UserIDKey    = contextKey("userID")
	UserRoleKey  = contextKey("userRole")
	SessionKey   = contextKey("sessionJTI")
	RequestIDKey = contextKey("requestID")
)

// GenerateAccessToken issues a short-lived HS256 access token.
func GenerateAccessToken(subjectID uint, role string, expiry time.Duration) (string, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return "", errors.New("JWT_SECRET is not set")
	}
	jti, err := generateJTI(32)
	if err != nil {
		return "", err
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"id":   subjectID,
		"role": role,
		"exp":  now.Add(expiry).Unix(),
		"iat":  now.Unix(),
		"nbf":  now.Unix(),
		"jti":  jti,
		"aud":  os.Getenv("JWT_AUD"),
		"iss":  os.Getenv("JWT_ISS"),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateAccessToken parses the token, verifies signature and registered
// claims, and checks the jti against the revocation store.
func ValidateAccessToken(tokenStr string) (jwt.MapClaims, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, errors.New("JWT_SECRET is not set")
	}
	token, err := jwt.ParseWithClaims(tokenStr, jwt.MapClaims{}, func(t *jwt.Token) (interface{}, error) {
		// Require exact HS256 to avoid algorithm confusion.
		if t.Method == nil || t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		if err != nil && strings.Contains(err.Error(), "expired") {
			return nil, errors.New("token expired")
		}
		return nil, errors.New("invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid claims")
	}

	if aud := os.Getenv("JWT_AUD"); aud != "" {
		if s, _ := claims["aud"].(string); s != aud {
			return nil, errors.New("invalid audience")
		}
	}
	if iss := os.Getenv("JWT_ISS"); iss != "" {
		if s, _ := claims["iss"].(string); s != iss {
			return nil, errors.New("invalid issuer")
		}
	}

	if jti, _ := claims["jti"].(string); jti != "" && isRevoked(jti) {
		return nil, errors.New("token revoked")
	}
	return claims, nil
}

func isRevoked(jti string) bool {
	if RedisClient != nil {
		res, err := RedisClient.Get(context.Background(), "jwt:blacklist:"+jti).Result()
		// Redis outages do not fail auth.
		return err == nil && res == "1"
	}
	if database.DB != nil {
		var rec models.RevokedToken
		return database.DB.Where("id = ?", jti).First(&rec).Error == nil
	}
	return false
}

// RevokeJTI blacklists a jti in Redis with TTL, or upserts it into the
// revoked_tokens table when Redis is not configured.
func RevokeJTI(jti string, ttl time.Duration) error {
	if jti == "" {
		return errors.New("empty jti")
	}
	if RedisClient != nil {
		return RedisClient.Set(context.Background(), "jwt:blacklist:"+jti, "1", ttl).Err()
	}
	if database.DB != nil {
		res := database.DB.Exec(
			"INSERT INTO revoked_tokens (id, revoked_at) VALUES (?, ?) ON DUPLICATE KEY UPDATE revoked_at = VALUES(revoked_at)",
			jti, time.Now())
		return res.Error
	}
	return errors.New("no revocation store configured")
}

// ClaimID extracts the numeric id claim, tolerating the types json decoding
// may produce.
func ClaimID(claims jwt.MapClaims) uint {
	switch v := claims["id"].(type) {
	case float64:
		return uint(v)
	case int:
		return uint(v)
	case string:
		var n uint
		_, _ = fmt.Sscanf(v, "%d", &n)
		return n
	}
	return 0
}

// BearerToken pulls the raw token out of the Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(authz, "Bearer ")), true
}

// GetUserID returns the authenticated user id placed in the request context
// by the auth middleware.
func GetUserID(r *http.Request) (uint, bool) {
	id, ok := r.Context().Value(UserIDKey).(uint)
	return id, ok
}

// GetSessionJTI returns the token id of the current session, used as the
// session marker stored with each spin.
func GetSessionJTI(r *http.Request) string {
	jti, _ := r.Context().Value(SessionKey).(string)
	return jti
}

// OptionalUserID resolves the user id from the Authorization header without
// requiring it: endpoints that also serve logged-out visitors use this.
func OptionalUserID(r *http.Request) uint {
	tokenStr, ok := BearerToken(r)
	if !ok {
		return 0
	}
	claims, err := ValidateAccessToken(tokenStr)
	if err != nil {
		return 0
	}
	return ClaimID(claims)
}

// generateJTI creates a random hex identifier used as JWT ID.
func generateJTI(n int) (string, error) {
	b := make([]byte, n/2)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
