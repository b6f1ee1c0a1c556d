// Package idempotency lets clients retry quote creation safely by replaying the first
// response recorded for an Idempotency-Key.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"
)

// DefaultTTL is how long a completed response stays replayable.
const DefaultTTL = 24 * time.Hour

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// ReservationState tells the middleware what to do with a request.
type ReservationState int

const (
	// ReservationStateNew: the caller now owns the key and runs the handler.
	ReservationStateNew ReservationState = iota
	// ReservationStateCompleted: replay Record.
	ReservationStateCompleted
	// ReservationStatePending: another request holds the key.
	ReservationStatePending
)

type Reservation struct {
	State  ReservationState
	Record Record
}

// Record is one key's stored state. The same struct is written to Firestore.
type Record struct {
	Key         string              `firestore:"key"`
	Fingerprint string              `firestore:"fingerprint"`
	Status      Status              `firestore:"status"`
	Code        int                 `firestore:"responseStatus"`
	Headers     map[string][]string `firestore:"responseHeaders"`
	Body        []byte              `firestore:"responseBody"`
	CreatedAt   time.Time           `firestore:"createdAt"`
	ExpiresAt   time.Time           `firestore:"expiresAt"`
}

func (r Record) expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Response is what the middleware captured from the handler.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Store persists key reservations and their responses. Implementations must make Reserve
// atomic per key.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error)
	SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key string) error
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

var ErrFingerprintMismatch = errors.New("idempotency: key reserved for a different request")

// reserve decides the outcome for key given its current record. When the key is free it
// also returns the pending record the store must write.
func reserve(current *Record, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, *Record, error) {
	if current == nil || current.expired(now) {
		pending := &Record{
			Key:         key,
			Fingerprint: fingerprint,
			Status:      StatusPending,
			CreatedAt:   now,
			ExpiresAt:   now.Add(ttlOrDefault(ttl)),
		}
		return Reservation{State: ReservationStateNew, Record: *pending}, pending, nil
	}
	switch {
	case current.Fingerprint != fingerprint:
		return Reservation{}, nil, ErrFingerprintMismatch
	case current.Status == StatusCompleted:
		return Reservation{State: ReservationStateCompleted, Record: *current}, nil, nil
	default:
		return Reservation{State: ReservationStatePending, Record: *current}, nil, nil
	}
}

// complete returns the record to store once the handler has answered.
func complete(current *Record, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) (Record, error) {
	next := Record{Key: key, Fingerprint: fingerprint, CreatedAt: now}
	if current != nil {
		if current.Fingerprint != fingerprint {
			return Record{}, ErrFingerprintMismatch
		}
		next.CreatedAt = current.CreatedAt
	}
	next.Status = StatusCompleted
	next.Code = resp.Status
	next.Headers = replayableHeaders(resp.Headers)
	next.Body = slices.Clone(resp.Body)
	next.ExpiresAt = now.Add(ttlOrDefault(ttl))
	return next, nil
}

func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}

// documentID hashes the scoped key so arbitrary client input is a valid document name.
func documentID(key string) string {
	return sha256Hex([]byte(strings.TrimSpace(key)))
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// replayableHeaders drops connection-level headers that must not be replayed.
func replayableHeaders(header http.Header) map[string][]string {
	out := make(map[string][]string, len(header))
	for name, values := range header {
		name = http.CanonicalHeaderKey(name)
		switch name {
		case "Content-Length", "Date", "Connection", "Keep-Alive", "Te", "Trailer",
			"Transfer-Encoding", "Upgrade", "Proxy-Authenticate", "Proxy-Authorization":
			continue
		}
		out[name] = slices.Clone(values)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
