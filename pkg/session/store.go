package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL is how long an idle session survives after its last append
	DefaultTTL = 24 * time.Hour
	// DefaultPairWindow is how many trailing messages are searched for the user
	// message of a turn
	DefaultPairWindow = 64

	pairedSuffix = ":paired"
)

// Store is an append-only, per-session message log
type Store interface {
	Append(ctx context.Context, sessionID string, msg Message) error
	GetAll(ctx context.Context, sessionID string) ([]Message, error)
	Clear(ctx context.Context, sessionID string) error
}

// PairRecorder receives every completed user/assistant pair detected on append
type PairRecorder interface {
	PersistPair(ctx context.Context, pair Pair) error
}

// RedisStore keeps each session as a Redis list of JSON encoded messages
type RedisStore struct {
	client   redis.UniversalClient
	ttl      time.Duration
	prefix   string
	window   int64
	recorder PairRecorder
}

// Option configures a RedisStore
type Option func(*RedisStore)

// WithTTL overrides the session expiry applied on every append
func WithTTL(ttl time.Duration) Option {
	return func(s *RedisStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithKeyPrefix namespaces session keys. An empty prefix stores sessions under
// the bare session id
func WithKeyPrefix(prefix string) Option {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// WithPairWindow bounds how far back a turn's user message is looked up
func WithPairWindow(n int) Option {
	return func(s *RedisStore) {
		if n > 0 {
			s.window = int64(n)
		}
	}
}

// WithPairRecorder forwards completed pairs to recorder
func WithPairRecorder(recorder PairRecorder) Option {
	return func(s *RedisStore) {
		s.recorder = recorder
	}
}

// NewRedisStore creates a session store on top of an existing Redis client
func NewRedisStore(client redis.UniversalClient, opts ...Option) *RedisStore {
	s := &RedisStore{
		client: client,
		ttl:    DefaultTTL,
		window: DefaultPairWindow,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Connect opens a Redis client from a redis:// URL and checks it responds
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid redis url")
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, goerr.Wrap(err, "failed to connect to redis", goerr.V("addr", opts.Addr))
	}

	return client, nil
}

// Append pushes msg to the end of the session and resets the session TTL. When
// msg completes a user/assistant pair, the pair is handed to the recorder
func (s *RedisStore) Append(ctx context.Context, sessionID string, msg Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return goerr.Wrap(err, "failed to encode message", goerr.V("session_id", sessionID))
	}

	key := s.key(sessionID)
	if _, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, raw)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	}); err != nil {
		return goerr.Wrap(err, "failed to append message", goerr.V("session_id", sessionID))
	}

	if s.recorder == nil || msg.Role != RoleAssistant {
		return nil
	}

	pair, ok, err := s.completedPair(ctx, sessionID, msg)
	if err != nil || !ok {
		return err
	}

	first, err := s.claimTurn(ctx, sessionID, pair.TurnID)
	if err != nil || !first {
		return err
	}

	if err := s.recorder.PersistPair(ctx, pair); err != nil {
		s.releaseTurn(ctx, sessionID, pair.TurnID)
		return goerr.Wrap(err, "failed to persist transcript pair",
			goerr.V("session_id", sessionID),
			goerr.V("turn_id", pair.TurnID),
		)
	}

	return nil
}

// GetAll returns the session's messages in append order. A missing or expired
// session yields an empty slice
func (s *RedisStore) GetAll(ctx context.Context, sessionID string) ([]Message, error) {
	return s.lrange(ctx, sessionID, 0, -1)
}

// Clear deletes the session. Clearing an unknown session is not an error
func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID), s.key(sessionID)+pairedSuffix).Err(); err != nil {
		return goerr.Wrap(err, "failed to clear session", goerr.V("session_id", sessionID))
	}
	return nil
}

// completedPair finds the user message answered by msg. Tagged messages are
// matched by turn id within the trailing window so concurrent turns cannot
// cross.
// Untagged messages fall back to requiring the last two entries to be exactly
// user then assistant
func (s *RedisStore) completedPair(ctx context.Context, sessionID string, msg Message) (Pair, bool, error) {
	pair := Pair{
		SessionID: sessionID,
		TurnID:    msg.TurnID,
		Response:  msg.Content,
		Timestamp: msg.Timestamp,
	}

	if msg.TurnID != "" {
		messages, err := s.lrange(ctx, sessionID, -s.window, -1)
		if err != nil {
			return Pair{}, false, err
		}

		for i := len(messages) - 1; i >= 0; i-- {
			if messages[i].Role == RoleUser && messages[i].TurnID == msg.TurnID {
				pair.Query = messages[i].Content
				return pair, true, nil
			}
		}
		return Pair{}, false, nil
	}

	last, err := s.lrange(ctx, sessionID, -2, -1)
	if err != nil {
		return Pair{}, false, err
	}
	if len(last) != 2 || last[0].Role != RoleUser || last[1].Role != RoleAssistant {
		return Pair{}, false, nil
	}

	pair.Query = last[0].Content
	pair.Response = last[1].Content
	return pair, true, nil
}

// claimTurn marks turnID as recorded and reports whether this call was the
// first to do so. Untagged pairs are never deduplicated
func (s *RedisStore) claimTurn(ctx context.Context, sessionID, turnID string) (bool, error) {
	if turnID == "" {
		return true, nil
	}

	key := s.key(sessionID) + pairedSuffix
	var added *redis.IntCmd
	if _, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		added = pipe.SAdd(ctx, key, turnID)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	}); err != nil {
		return false, goerr.Wrap(err, "failed to mark turn as recorded",
			goerr.V("session_id", sessionID),
			goerr.V("turn_id", turnID),
		)
	}

	return added.Val() == 1, nil
}

// releaseTurn lets a later append retry a pair whose persist failed
func (s *RedisStore) releaseTurn(ctx context.Context, sessionID, turnID string) {
	if turnID == "" {
		return
	}
	s.client.SRem(ctx, s.key(sessionID)+pairedSuffix, turnID)
}

func (s *RedisStore) lrange(ctx context.Context, sessionID string, start, stop int64) ([]Message, error) {
	raws, err := s.client.LRange(ctx, s.key(sessionID), start, stop).Result()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read session", goerr.V("session_id", sessionID))
	}

	messages := make([]Message, 0, len(raws))
	for _, raw := range raws {
		var msg Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return nil, goerr.Wrap(err, "failed to decode message", goerr.V("session_id", sessionID))
		}
		messages = append(messages, msg)
	}

	return messages, nil
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + sessionID
}
