package service

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTokenNotFound covers unknown, expired and already-used tokens. Store
	// outages are reported separately via ErrTokenStoreUnavailable so callers
	// never mistake an infrastructure failure for an invalid token.
	ErrTokenNotFound         = errors.New("check-in token not found")
	ErrTokenStoreUnavailable = errors.New("check-in token store unavailable")
)

type CheckInTokenPayload struct {
	MemberID  uint      `json:"member_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Used      bool      `json:"used"`
}

type CheckInTokenStore interface {
	// IssueActive atomically supersedes the member's current active token:
	// the previous token record is marked used with its TTL capped to
	// usedGrace, the new payload is written with the given TTL, and the
	// member's active pointer is repointed. At no instant are two tokens
	// active for one member.
	IssueActive(ctx context.Context, memberID uint, token string, payload CheckInTokenPayload, ttl, usedGrace time.Duration) error

	// Consume atomically marks the token used and returns the payload as it
	// was before the mutation. Unknown, expired or already-used tokens yield
	// ErrTokenNotFound; under concurrent consumers exactly one call wins.
	Consume(ctx context.Context, token string, usedGrace time.Duration) (*CheckInTokenPayload, error)

	// Peek reads the token payload without mutating it; (nil, nil) on miss.
	Peek(ctx context.Context, token string) (*CheckInTokenPayload, error)
}
