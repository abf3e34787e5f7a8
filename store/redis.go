package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements SessionStore using Redis.
//
// Layout, relative to the key prefix:
//
//	session:<token>  hash with the session fields
//	id:<id>          token of the session with that id
//	user:<userID>    set of the user's tokens
//	expiry           sorted set of tokens scored by expiry (Unix microseconds)
//	seq              id counter
//	users            set of known user IDs
//
// Every mutation runs as a Lua script so the hash and its indexes change together.
// Keys are derived inside the scripts, so the store targets a single Redis node.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisConfig contains configuration options for Redis.
type RedisConfig struct {
	// URL is a redis:// URL. When set, Addr, Password and DB are ignored.
	URL string

	// Addr is the Redis server address (e.g., "localhost:6379")
	Addr string

	// Password is the Redis password (empty for no auth)
	Password string

	// DB is the Redis database number (0-15)
	DB int

	// KeyPrefix is prepended to all keys (default: "warden:")
	// typically ends with a colon.
	KeyPrefix string
}

// sweepBatch bounds how many expired sessions a single script call removes.
const sweepBatch = 500

// NewRedis creates a Redis session store from a Redis client and a key prefix.
// prefix typically ends with a colon.
func NewRedis(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "warden:"
	}
	return &RedisStore{
		client: client,
		prefix: keyPrefix,
	}
}

// NewRedisFromConfig connects to Redis and creates a session store.
func NewRedisFromConfig(cfg RedisConfig) (*RedisStore, error) {
	opt := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("redis: invalid url: %w", err)
		}
		opt = parsed
	}

	opt.MinIdleConns = 2
	opt.DialTimeout = 5 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute

	client := redis.NewClient(opt)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: failed to connect: %w", err)
	}

	return NewRedis(client, cfg.KeyPrefix), nil
}

// removeSessionLua deletes one session and its index entries.
// It expects the prefix in ARGV[1].
const removeSessionLua = `
local function remove(prefix, token)
	local skey = prefix .. 'session:' .. token
	local fields = redis.call('HMGET', skey, 'id', 'user_id')
	redis.call('ZREM', prefix .. 'expiry', token)
	if not fields[1] then
		return 0
	end
	redis.call('DEL', skey)
	redis.call('DEL', prefix .. 'id:' .. fields[1])
	redis.call('SREM', prefix .. 'user:' .. fields[2], token)
	return 1
end
`

var (
	// ARGV: prefix, token, expires, user_id, id, field/value pairs...
	insertScript = redis.NewScript(`
local prefix, token = ARGV[1], ARGV[2]
local skey = prefix .. 'session:' .. token
if redis.call('EXISTS', skey) == 1 then
	return 0
end
redis.call('HSET', skey, unpack(ARGV, 6))
redis.call('SET', prefix .. 'id:' .. ARGV[5], token)
redis.call('SADD', prefix .. 'user:' .. ARGV[4], token)
redis.call('ZADD', prefix .. 'expiry', ARGV[3], token)
return 1
`)

	// ARGV: prefix, id, expires. Returns the token, or nil if the session is gone.
	extendScript = redis.NewScript(`
local prefix = ARGV[1]
local token = redis.call('GET', prefix .. 'id:' .. ARGV[2])
if not token then
	return false
end
local skey = prefix .. 'session:' .. token
local current = tonumber(redis.call('HGET', skey, 'expires_at'))
if not current then
	return false
end
local target = tonumber(ARGV[3])
if current < target then
	redis.call('HSET', skey, 'expires_at', ARGV[3])
	redis.call('ZADD', prefix .. 'expiry', ARGV[3], token)
end
return token
`)

	// ARGV: prefix, user_id, at
	expireUserScript = redis.NewScript(`
local prefix = ARGV[1]
local n = 0
for _, token in ipairs(redis.call('SMEMBERS', prefix .. 'user:' .. ARGV[2])) do
	local skey = prefix .. 'session:' .. token
	if redis.call('EXISTS', skey) == 1 then
		redis.call('HSET', skey, 'expires_at', ARGV[3])
		redis.call('ZADD', prefix .. 'expiry', ARGV[3], token)
		n = n + 1
	end
end
return n
`)

	// ARGV: prefix, token
	deleteByTokenScript = redis.NewScript(removeSessionLua + `
return remove(ARGV[1], ARGV[2])
`)

	// ARGV: prefix, id
	deleteByIDScript = redis.NewScript(removeSessionLua + `
local token = redis.call('GET', ARGV[1] .. 'id:' .. ARGV[2])
if not token then
	return 0
end
return remove(ARGV[1], token)
`)

	// ARGV: prefix, user_id
	deleteByUserScript = redis.NewScript(removeSessionLua + `
local n = 0
local ukey = ARGV[1] .. 'user:' .. ARGV[2]
for _, token in ipairs(redis.call('SMEMBERS', ukey)) do
	n = n + remove(ARGV[1], token)
end
redis.call('DEL', ukey)
return n
`)

	// ARGV: prefix, now, batch. Removes sessions scored strictly below now.
	deleteExpiredScript = redis.NewScript(removeSessionLua + `
local n = 0
local tokens = redis.call('ZRANGEBYSCORE', ARGV[1] .. 'expiry', '-inf', '(' .. ARGV[2], 'LIMIT', 0, tonumber(ARGV[3]))
for _, token in ipairs(tokens) do
	n = n + remove(ARGV[1], token)
end
return {n, #tokens}
`)

	// ARGV: prefix, user_id, now
	countActiveByUserScript = redis.NewScript(`
local prefix = ARGV[1]
local now = tonumber(ARGV[3])
local n = 0
for _, token in ipairs(redis.call('SMEMBERS', prefix .. 'user:' .. ARGV[2])) do
	local score = redis.call('ZSCORE', prefix .. 'expiry', token)
	if score and tonumber(score) > now then
		n = n + 1
	end
end
return n
`)
)

func (s *RedisStore) key(parts ...string) string {
	k := s.prefix
	for _, p := range parts {
		k += p
	}
	return k
}

// UserExists checks the set of known user IDs.
func (s *RedisStore) UserExists(ctx context.Context, userID int64) (bool, error) {
	ok, err := s.client.SIsMember(ctx, s.key("users"), userID).Result()
	if err != nil {
		return false, fmt.Errorf("redis: failed to look up user: %w", err)
	}
	return ok, nil
}

// AddUser registers a user ID.
func (s *RedisStore) AddUser(ctx context.Context, userID int64) error {
	if err := s.client.SAdd(ctx, s.key("users"), userID).Err(); err != nil {
		return fmt.Errorf("redis: failed to add user: %w", err)
	}
	return nil
}

// Insert persists a new session.
func (s *RedisStore) Insert(ctx context.Context, session *Session) (*Session, error) {
	stored := session.clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	stored.CreatedAt = stored.CreatedAt.Truncate(time.Microsecond)
	stored.ExpiresAt = stored.ExpiresAt.Truncate(time.Microsecond)

	id, err := s.client.Incr(ctx, s.key("seq")).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: failed to allocate session id: %w", err)
	}
	stored.ID = id

	args := []any{
		s.prefix,
		stored.Token,
		stored.ExpiresAt.UnixMicro(),
		stored.UserID,
		stored.ID,
	}
	for field, value := range sessionFields(stored) {
		args = append(args, field, value)
	}

	ok, err := insertScript.Run(ctx, s.client, nil, args...).Int64()
	if err != nil {
		return nil, fmt.Errorf("redis: failed to insert session: %w", err)
	}
	if ok == 0 {
		return nil, ErrDuplicateToken
	}
	return stored, nil
}

// FindByToken returns the session for token, or nil if none exists.
func (s *RedisStore) FindByToken(ctx context.Context, token string) (*Session, error) {
	data, err := s.client.HGetAll(ctx, s.key("session:", token)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: failed to get session: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return parseSession(data)
}

// FindByUser returns all sessions for a user, newest first.
func (s *RedisStore) FindByUser(ctx context.Context, userID int64) ([]*Session, error) {
	tokens, err := s.client.SMembers(ctx, s.key("user:", strconv.FormatInt(userID, 10))).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: failed to list user sessions: %w", err)
	}
	if len(tokens) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(tokens))
	for i, token := range tokens {
		cmds[i] = pipe.HGetAll(ctx, s.key("session:", token))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis: failed to load user sessions: %w", err)
	}

	sessions := make([]*Session, 0, len(tokens))
	for _, cmd := range cmds {
		data := cmd.Val()
		if len(data) == 0 {
			// removed between SMEMBERS and HGETALL
			continue
		}
		session, err := parseSession(data)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	SortNewestFirst(sessions)
	return sessions, nil
}

// ExtendExpiry moves a session's expiry forward, never backwards.
func (s *RedisStore) ExtendExpiry(ctx context.Context, id int64, expiresAt time.Time) (*Session, error) {
	token, err := extendScript.Run(ctx, s.client, nil, s.prefix, id, expiresAt.UnixMicro()).Text()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: failed to extend session: %w", err)
	}
	return s.FindByToken(ctx, token)
}

// ExpireUser sets the expiry of every session of the user.
func (s *RedisStore) ExpireUser(ctx context.Context, userID int64, at time.Time) (int64, error) {
	n, err := expireUserScript.Run(ctx, s.client, nil, s.prefix, userID, at.UnixMicro()).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis: failed to expire user sessions: %w", err)
	}
	return n, nil
}

// DeleteByID removes a session by its ID.
func (s *RedisStore) DeleteByID(ctx context.Context, id int64) (int64, error) {
	n, err := deleteByIDScript.Run(ctx, s.client, nil, s.prefix, id).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis: failed to delete session: %w", err)
	}
	return n, nil
}

// DeleteByToken removes a session by its token.
func (s *RedisStore) DeleteByToken(ctx context.Context, token string) (int64, error) {
	n, err := deleteByTokenScript.Run(ctx, s.client, nil, s.prefix, token).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis: failed to delete session: %w", err)
	}
	return n, nil
}

// DeleteByUser removes every session of a user.
func (s *RedisStore) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	n, err := deleteByUserScript.Run(ctx, s.client, nil, s.prefix, userID).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis: failed to delete user sessions: %w", err)
	}
	return n, nil
}

// DeleteExpired removes all sessions that expired before now, in batches.
func (s *RedisStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	for {
		res, err := deleteExpiredScript.Run(ctx, s.client, nil, s.prefix, now.UnixMicro(), sweepBatch).Int64Slice()
		if err != nil {
			return total, fmt.Errorf("redis: failed to delete expired sessions: %w", err)
		}
		total += res[0]
		if res[1] < sweepBatch {
			return total, nil
		}
	}
}

// CountActiveByUser counts the user's unexpired sessions.
func (s *RedisStore) CountActiveByUser(ctx context.Context, userID int64, now time.Time) (int64, error) {
	n, err := countActiveByUserScript.Run(ctx, s.client, nil, s.prefix, userID, now.UnixMicro()).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis: failed to count user sessions: %w", err)
	}
	return n, nil
}

// CountAll counts every stored session.
func (s *RedisStore) CountAll(ctx context.Context) (int64, error) {
	n, err := s.client.ZCard(ctx, s.key("expiry")).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: failed to count sessions: %w", err)
	}
	return n, nil
}

// CountActive counts unexpired sessions.
func (s *RedisStore) CountActive(ctx context.Context, now time.Time) (int64, error) {
	lower := "(" + strconv.FormatInt(now.UnixMicro(), 10)
	n, err := s.client.ZCount(ctx, s.key("expiry"), lower, "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("redis: failed to count sessions: %w", err)
	}
	return n, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func sessionFields(s *Session) map[string]any {
	return map[string]any{
		"id":          s.ID,
		"user_id":     s.UserID,
		"token":       s.Token,
		"created_at":  s.CreatedAt.UnixMicro(),
		"expires_at":  s.ExpiresAt.UnixMicro(),
		"client_ip":   s.ClientIP,
		"user_agent":  s.UserAgent,
		"browser":     s.Browser,
		"os":          s.OS,
		"device_type": s.DeviceType,
		"city":        s.City,
		"country":     s.Country,
	}
}

func parseSession(data map[string]string) (*Session, error) {
	ints := make(map[string]int64, 4)
	for _, field := range []string{"id", "user_id", "created_at", "expires_at"} {
		v, err := strconv.ParseInt(data[field], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("redis: corrupt session field %q: %w", field, err)
		}
		ints[field] = v
	}

	return &Session{
		ID:         ints["id"],
		UserID:     ints["user_id"],
		Token:      data["token"],
		CreatedAt:  time.UnixMicro(ints["created_at"]).UTC(),
		ExpiresAt:  time.UnixMicro(ints["expires_at"]).UTC(),
		ClientIP:   data["client_ip"],
		UserAgent:  data["user_agent"],
		Browser:    data["browser"],
		OS:         data["os"],
		DeviceType: data["device_type"],
		City:       data["city"],
		Country:    data["country"],
	}, nil
}
