package sessionstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/chassisworks/chassis/pkg/logger"
)

// Config holds redis connection settings.
type Config struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Redis stores session records as redis hashes with a TTL equal to the
// access-token lifetime. Safe for concurrent use from multiple sockets and
// processes.
type Redis struct {
	client    *redis.Client
	serverTag string
	ttl       time.Duration
	log       *logger.Logger
}

// NewRedis connects a redis-backed store.
func NewRedis(cfg Config, serverTag string, ttl time.Duration, log *logger.Logger) (*Redis, error) {
	if log == nil {
		log = logger.NewDefault("sessionstore")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("sessionstore: ping redis: %w", err)
	}
	return &Redis{client: client, serverTag: serverTag, ttl: ttl, log: log}, nil
}

// Close releases the redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Open writes a new session record and returns its generated id.
func (r *Redis) Open(ctx context.Context, userID string, payload Record) (string, error) {
	sessionID := uuid.NewString()
	key := Key(r.serverTag, userID, sessionID)

	fields, err := encodeRecord(payload)
	if err != nil {
		return "", err
	}
	if len(fields) == 0 {
		fields = map[string]interface{}{"createdAt": time.Now().UTC().Format(time.RFC3339)}
	}

	if err := r.client.HSet(ctx, key, fields).Err(); err != nil {
		return "", fmt.Errorf("sessionstore: hset %s: %w", key, err)
	}
	if err := r.client.Expire(ctx, key, r.ttl).Err(); err != nil {
		return "", fmt.Errorf("sessionstore: expire %s: %w", key, err)
	}
	return sessionID, nil
}

// Get reads the record for (userID, sessionID), or nil when absent.
func (r *Redis) Get(ctx context.Context, userID, sessionID string) (Record, error) {
	return r.read(ctx, Key(r.serverTag, userID, sessionID))
}

// Delete removes the record for (userID, sessionID).
func (r *Redis) Delete(ctx context.Context, userID, sessionID string) error {
	key := Key(r.serverTag, userID, sessionID)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("sessionstore: del %s: %w", key, err)
	}
	return nil
}

// Count returns the number of live sessions for the user.
func (r *Redis) Count(ctx context.Context, userID string) (int, error) {
	keys, err := r.client.Keys(ctx, UserPattern(r.serverTag, userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("sessionstore: keys: %w", err)
	}
	return len(keys), nil
}

// SetField updates one field of an existing record.
func (r *Redis) SetField(ctx context.Context, userID, sessionID, field string, value interface{}) error {
	key := Key(r.serverTag, userID, sessionID)
	encoded, err := encodeValue(value)
	if err != nil {
		return err
	}
	if err := r.client.HSet(ctx, key, field, encoded).Err(); err != nil {
		return fmt.Errorf("sessionstore: hset field %s.%s: %w", key, field, err)
	}
	return nil
}

// FindByUser scans the user's session keys and returns the first live
// record, or nil when the user has no session.
func (r *Redis) FindByUser(ctx context.Context, userID string) (Record, error) {
	keys, err := r.client.Keys(ctx, UserPattern(r.serverTag, userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("sessionstore: keys: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	return r.read(ctx, keys[0])
}

func (r *Redis) read(ctx context.Context, key string) (Record, error) {
	raw, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("sessionstore: hgetall %s: %w", key, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	record := make(Record, len(raw))
	for field, value := range raw {
		var decoded interface{}
		if err := json.Unmarshal([]byte(value), &decoded); err != nil {
			record[field] = value
			continue
		}
		record[field] = decoded
	}
	return record, nil
}

func encodeRecord(payload Record) (map[string]interface{}, error) {
	fields := make(map[string]interface{}, len(payload))
	for name, value := range payload {
		encoded, err := encodeValue(value)
		if err != nil {
			return nil, err
		}
		fields[name] = encoded
	}
	return fields, nil
}

func encodeValue(value interface{}) (string, error) {
	if s, ok := value.(string); ok {
		return s, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("sessionstore: encode field: %w", err)
	}
	return string(raw), nil
}
