package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisSessionPrefix     = "auth:session:"
	redisSessionSeqKey     = "auth:session_seq"
	redisUserSessionPrefix = "auth:user_sessions:"

	// redisExpiredGrace keeps expired rows around long enough for FindValid to
	// report ErrSessionExpired instead of ErrSessionNotFound.
	redisExpiredGrace = time.Hour
)

// extendTTLScript raises the key's TTL to ARGV[1] milliseconds and never
// lowers it. PTTL is negative for keys without an expiry.
const extendTTLScript = `
local ttl = redis.call('PTTL', KEYS[1])
local want = tonumber(ARGV[1])
if ttl < want then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return 1
`

// RedisSessionStore implements SessionStore on Redis hashes. Each session is
// a hash keyed by token; a per-user set indexes tokens for bulk revocation.
type RedisSessionStore struct {
	client  *redis.Client
	timeout time.Duration
	now     func() time.Time
}

// NewRedisSessionStore constructs a Redis-backed session store.
func NewRedisSessionStore(client *redis.Client, timeout time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, timeout: timeout, now: time.Now}
}

func (s *RedisSessionStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func sessionKey(token string) string { return redisSessionPrefix + token }

func userSessionsKey(userID int64) string {
	return redisUserSessionPrefix + strconv.FormatInt(userID, 10)
}

// Create stores the session hash and indexes it under the user.
func (s *RedisSessionStore) Create(ctx context.Context, in NewSession) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	id, err := s.client.Incr(ctx, redisSessionSeqKey).Result()
	if err != nil {
		return 0, redisError("create session", err)
	}
	key := sessionKey(in.Token)
	keepFor := in.ExpiresAt.Add(redisExpiredGrace).Sub(s.now())
	if keepFor < time.Millisecond {
		keepFor = time.Millisecond
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, map[string]any{
			"id":         id,
			"user_id":    in.UserID,
			"expires_at": in.ExpiresAt.UnixNano(),
			"created_at": s.now().UnixNano(),
			"ip":         in.IP,
			"user_agent": in.UserAgent,
		})
		pipe.PExpireAt(ctx, key, in.ExpiresAt.Add(redisExpiredGrace))
		// The index lives as long as its longest-lived session hash.
		setKey := userSessionsKey(in.UserID)
		pipe.SAdd(ctx, setKey, in.Token)
		pipe.Eval(ctx, extendTTLScript, []string{setKey}, keepFor.Milliseconds())
		return nil
	})
	if err != nil {
		return 0, redisError("create session", err)
	}
	return id, nil
}

// FindValid loads the session hash for token.
func (s *RedisSessionStore) FindValid(ctx context.Context, token string) (Session, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	fields, err := s.client.HGetAll(ctx, sessionKey(token)).Result()
	if err != nil {
		return Session{}, redisError("find session", err)
	}
	if len(fields) == 0 {
		return Session{}, ErrSessionNotFound
	}
	sess, err := decodeRedisSession(token, fields)
	if err != nil {
		return Session{}, fmt.Errorf("auth: find session: %w", err)
	}
	if !sess.Valid(s.now()) {
		return Session{}, ErrSessionExpired
	}
	return sess, nil
}

// DeleteByUserAndToken removes the session only when it belongs to userID.
func (s *RedisSessionStore) DeleteByUserAndToken(ctx context.Context, userID int64, token string) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	owner, err := s.client.HGet(ctx, sessionKey(token), "user_id").Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, redisError("delete session", err)
	}
	if owner != userID {
		return 0, nil
	}
	var del *redis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, sessionKey(token))
		pipe.SRem(ctx, userSessionsKey(userID), token)
		return nil
	})
	if err != nil {
		return 0, redisError("delete session", err)
	}
	return del.Val(), nil
}

// DeleteAllForUser removes every indexed session of userID.
func (s *RedisSessionStore) DeleteAllForUser(ctx context.Context, userID int64) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	tokens, err := s.client.SMembers(ctx, userSessionsKey(userID)).Result()
	if err != nil {
		return 0, redisError("delete user sessions", err)
	}
	if len(tokens) == 0 {
		return 0, nil
	}
	keys := make([]string, 0, len(tokens))
	for _, t := range tokens {
		keys = append(keys, sessionKey(t))
	}
	var del *redis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, keys...)
		pipe.Del(ctx, userSessionsKey(userID))
		return nil
	})
	if err != nil {
		return 0, redisError("delete user sessions", err)
	}
	return del.Val(), nil
}

// PurgeExpired scans session hashes and drops those expired at cutoff, then
// prunes user index entries whose hash Redis has already evicted.
func (s *RedisSessionStore) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var purged int64
	iter := s.client.Scan(ctx, 0, redisSessionPrefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		vals, err := s.client.HMGet(ctx, key, "user_id", "expires_at").Result()
		if err != nil {
			return purged, redisError("purge sessions", err)
		}
		userID, _ := parseInt(vals[0])
		expiresAt, ok := parseInt(vals[1])
		if !ok || time.Unix(0, expiresAt).After(cutoff) {
			continue
		}
		token := key[len(redisSessionPrefix):]
		n, err := s.client.Del(ctx, key).Result()
		if err != nil {
			return purged, redisError("purge sessions", err)
		}
		if userID > 0 {
			_ = s.client.SRem(ctx, userSessionsKey(userID), token).Err()
		}
		purged += n
	}
	if err := iter.Err(); err != nil {
		return purged, redisError("purge sessions", err)
	}
	if err := s.pruneUserIndexes(ctx); err != nil {
		return purged, redisError("purge sessions", err)
	}
	return purged, nil
}

func (s *RedisSessionStore) pruneUserIndexes(ctx context.Context) error {
	sets := s.client.Scan(ctx, 0, redisUserSessionPrefix+"*", 200).Iterator()
	for sets.Next(ctx) {
		setKey := sets.Val()
		var stale []any
		members := s.client.SScan(ctx, setKey, 0, "", 200).Iterator()
		for members.Next(ctx) {
			token := members.Val()
			n, err := s.client.Exists(ctx, sessionKey(token)).Result()
			if err != nil {
				return err
			}
			if n == 0 {
				stale = append(stale, token)
			}
		}
		if err := members.Err(); err != nil {
			return err
		}
		if len(stale) > 0 {
			if err := s.client.SRem(ctx, setKey, stale...).Err(); err != nil {
				return err
			}
		}
	}
	return sets.Err()
}

func decodeRedisSession(token string, fields map[string]string) (Session, error) {
	id, err := strconv.ParseInt(fields["id"], 10, 64)
	if err != nil {
		return Session{}, fmt.Errorf("decode id: %w", err)
	}
	userID, err := strconv.ParseInt(fields["user_id"], 10, 64)
	if err != nil {
		return Session{}, fmt.Errorf("decode user_id: %w", err)
	}
	expires, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return Session{}, fmt.Errorf("decode expires_at: %w", err)
	}
	created, _ := strconv.ParseInt(fields["created_at"], 10, 64)
	return Session{
		ID:        id,
		UserID:    userID,
		Token:     token,
		ExpiresAt: time.Unix(0, expires),
		CreatedAt: time.Unix(0, created),
		IP:        fields["ip"],
		UserAgent: fields["user_agent"],
	}, nil
}

func parseInt(v any) (int64, bool) {
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil
}

func redisError(op string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, redis.ErrClosed) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
	}
	return fmt.Errorf("auth: %s: %w", op, err)
}

var _ SessionStore = (*RedisSessionStore)(nil)
