// Package redis implements the blob Store on Redis, one hash per payload.
// It suits deployments that already run Redis and keep attachments small.
package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"btxclinic/internal/blob/core"
)

const (
	fieldData        = "data"
	fieldContentType = "content_type"
	fieldETag        = "etag"
	fieldSize        = "size"
	fieldMetadata    = "metadata"
	fieldUpdatedAt   = "updated_at"

	defaultPrefix = "btx:blob:"
	scanCount     = 100
)

// Config selects the Redis server and key namespace.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Store implements core.Store on a Redis keyspace.
type Store struct {
	client goredis.UniversalClient
	prefix string
}

// New connects to Redis and verifies the connection with PING.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}
	client := goredis.NewClient(&goredis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return NewWithClient(client, cfg.Prefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client goredis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

// Close releases the underlying client.
func (s *Store) Close() error { return s.client.Close() }

func (s *Store) Driver() core.Driver { return core.DriverRedis }

func (s *Store) redisKey(key string) string { return s.prefix + key }

// ValidateKey rejects blank keys.
func (s *Store) ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: empty key", core.ErrInvalidKey)
	}
	return nil
}

// Put replaces the whole hash in one MULTI/EXEC so that fields from a previous
// payload never survive.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	if err := s.ValidateKey(key); err != nil {
		return core.Info{}, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return core.Info{}, err
	}
	sum := sha256.Sum256(data)
	info := core.Info{
		Key:          key,
		Size:         int64(len(data)),
		ContentType:  opts.ContentType,
		ETag:         hex.EncodeToString(sum[:]),
		Metadata:     opts.Metadata,
		LastModified: time.Now().UTC(),
	}
	fields, err := encodeFields(info)
	if err != nil {
		return core.Info{}, err
	}
	fields[fieldData] = data
	rk := s.redisKey(key)
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, rk)
		pipe.HSet(ctx, rk, fields)
		return nil
	})
	if err != nil {
		return core.Info{}, fmt.Errorf("put %s: %w", key, err)
	}
	return info, nil
}

func (s *Store) Get(ctx context.Context, key string) (core.Info, io.ReadCloser, error) {
	values, err := s.client.HGetAll(ctx, s.redisKey(key)).Result()
	if err != nil {
		return core.Info{}, nil, fmt.Errorf("get %s: %w", key, err)
	}
	if len(values) == 0 {
		return core.Info{}, nil, core.ErrNotFound
	}
	info := decodeFields(key, values)
	return info, io.NopCloser(strings.NewReader(values[fieldData])), nil
}

func (s *Store) Head(ctx context.Context, key string) (core.Info, error) {
	names := []string{fieldContentType, fieldETag, fieldSize, fieldMetadata, fieldUpdatedAt}
	raw, err := s.client.HMGet(ctx, s.redisKey(key), names...).Result()
	if err != nil {
		return core.Info{}, fmt.Errorf("head %s: %w", key, err)
	}
	values := make(map[string]string, len(names))
	for i, v := range raw {
		if str, ok := v.(string); ok {
			values[names[i]] = str
		}
	}
	if len(values) == 0 {
		return core.Info{}, core.ErrNotFound
	}
	return decodeFields(key, values), nil
}

func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Del(ctx, s.redisKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", key, err)
	}
	return n > 0, nil
}

// List scans the namespace; ordering is applied client side.
func (s *Store) List(ctx context.Context, prefix string) ([]core.Info, error) {
	match := escapeGlob(s.prefix+prefix) + "*"
	var infos []core.Info
	iter := s.client.Scan(ctx, 0, match, scanCount).Iterator()
	for iter.Next(ctx) {
		key := strings.TrimPrefix(iter.Val(), s.prefix)
		info, err := s.Head(ctx, key)
		if errors.Is(err, core.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan %q: %w", prefix, err)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func encodeFields(info core.Info) (map[string]any, error) {
	fields := map[string]any{
		fieldContentType: info.ContentType,
		fieldETag:        info.ETag,
		fieldSize:        strconv.FormatInt(info.Size, 10),
		fieldUpdatedAt:   info.LastModified.Format(time.RFC3339Nano),
	}
	if len(info.Metadata) > 0 {
		md, err := json.Marshal(info.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode metadata: %w", err)
		}
		fields[fieldMetadata] = string(md)
	}
	return fields, nil
}

func decodeFields(key string, values map[string]string) core.Info {
	info := core.Info{Key: key, ContentType: values[fieldContentType], ETag: values[fieldETag]}
	info.Size, _ = strconv.ParseInt(values[fieldSize], 10, 64)
	if data, ok := values[fieldData]; ok {
		info.Size = int64(len(data))
	}
	info.LastModified, _ = time.Parse(time.RFC3339Nano, values[fieldUpdatedAt])
	if md := values[fieldMetadata]; md != "" {
		_ = json.Unmarshal([]byte(md), &info.Metadata)
	}
	return info
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
