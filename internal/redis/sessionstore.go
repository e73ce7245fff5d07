package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"payflow/internal/domain"
)

// ErrNotFound is returned when a session does not exist in the store.
var ErrNotFound = errors.New("session not found")

// Key prefixes
const (
	sessionKeyPrefix = "payses:"
	invoiceKeyPrefix = "payinv:"
	activeSetKey     = "payses:active"
)

// casScript atomically checks the mirrored status key and, if it still
// holds the expected old status, writes the new status and the new
// record body. TTLs on both keys are preserved.
var casScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'KEEPTTL')
redis.call('SET', KEYS[2], ARGV[3], 'KEEPTTL')
return 1
`)

// SessionStore persists payment sessions in Redis. A session is stored
// as a JSON record plus a mirrored status key; every mutation goes
// through a compare-and-swap on the status key, which makes state
// machine transitions race-safe without a lock spanning sessions.
type SessionStore struct {
	client *redis.Client
}

// NewSessionStore creates a new SessionStore.
func NewSessionStore(client *redis.Client) *SessionStore {
	return &SessionStore{client: client}
}

func sessionKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}

func statusKey(sessionID string) string {
	return sessionKeyPrefix + sessionID + ":status"
}

func invoiceKey(invoiceID string) string {
	return invoiceKeyPrefix + invoiceID
}

// Put persists a new session with the given TTL and indexes it by
// invoice ID. Push notifications arrive keyed by invoice, not session,
// so the secondary index is written in the same pipeline.
func (s *SessionStore) Put(ctx context.Context, session *domain.PaymentSession, ttl time.Duration) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, sessionKey(session.SessionID), data, ttl)
	pipe.Set(ctx, statusKey(session.SessionID), string(session.Status), ttl)
	if session.InvoiceID != "" {
		pipe.Set(ctx, invoiceKey(session.InvoiceID), session.SessionID, ttl)
	}
	pipe.SAdd(ctx, activeSetKey, session.SessionID)

	_, err = pipe.Exec(ctx)
	return err
}

// Get retrieves a session by ID.
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*domain.PaymentSession, error) {
	data, err := s.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var session domain.PaymentSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// GetByInvoiceID retrieves a session through the invoice index.
func (s *SessionStore) GetByInvoiceID(ctx context.Context, invoiceID string) (*domain.PaymentSession, error) {
	sessionID, err := s.client.Get(ctx, invoiceKey(invoiceID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.Get(ctx, sessionID)
}

// CompareAndSwapStatus writes the session record iff the stored status
// still equals expectedOld. session.Status carries the new status; a
// body-only update passes expectedOld equal to the current status.
// Returns false when another writer got there first.
func (s *SessionStore) CompareAndSwapStatus(ctx context.Context, session *domain.PaymentSession, expectedOld domain.SessionStatus) (bool, error) {
	data, err := json.Marshal(session)
	if err != nil {
		return false, err
	}

	keys := []string{statusKey(session.SessionID), sessionKey(session.SessionID)}
	res, err := casScript.Run(ctx, s.client, keys,
		string(expectedOld), string(session.Status), data).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// ExpireAt re-arms the TTL on a session's keys. Used to extend a
// terminal session into the audit retention window.
func (s *SessionStore) ExpireAt(ctx context.Context, sessionID, invoiceID string, ttl time.Duration) error {
	pipe := s.client.Pipeline()
	pipe.Expire(ctx, sessionKey(sessionID), ttl)
	pipe.Expire(ctx, statusKey(sessionID), ttl)
	if invoiceID != "" {
		pipe.Expire(ctx, invoiceKey(invoiceID), ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// AddActive adds a session to the active set scanned by the sweeper.
func (s *SessionStore) AddActive(ctx context.Context, sessionID string) error {
	return s.client.SAdd(ctx, activeSetKey, sessionID).Err()
}

// RemoveActive removes a session from the active set once it no longer
// needs sweeping.
func (s *SessionStore) RemoveActive(ctx context.Context, sessionID string) error {
	return s.client.SRem(ctx, activeSetKey, sessionID).Err()
}

// ActiveSessions returns the IDs of sessions still subject to sweeping.
func (s *SessionStore) ActiveSessions(ctx context.Context) ([]string, error) {
	return s.client.SMembers(ctx, activeSetKey).Result()
}
