package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

// TokenStore persists the single bearer token under a well-known key. Load
// returns "" with a nil error when nothing is stored.
type TokenStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

type MemoryTokens struct {
	mu    sync.RWMutex
	token string
}

func NewMemoryTokens() *MemoryTokens { return &MemoryTokens{} }

func (m *MemoryTokens) Load(context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, nil
}

func (m *MemoryTokens) Save(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

func (m *MemoryTokens) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	return nil
}

// FileTokens keeps the token in a small JSON object on disk, readable only
// by the owner. The file holds {"<key>": "<token>"}.
type FileTokens struct {
	mu   sync.Mutex
	path string
	key  string
}

func NewFileTokens(path, key string) *FileTokens {
	return &FileTokens{path: path, key: key}
}

func (f *FileTokens) Load(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := f.read()
	if err != nil {
		return "", err
	}
	return data[f.key], nil
}

func (f *FileTokens) Save(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := f.read()
	if err != nil {
		return err
	}
	data[f.key] = token
	return f.write(data)
}

func (f *FileTokens) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := f.read()
	if err != nil {
		return err
	}
	if _, ok := data[f.key]; !ok {
		return nil
	}
	delete(data, f.key)
	if len(data) == 0 {
		if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove token file: %w", err)
		}
		return nil
	}
	return f.write(data)
}

func (f *FileTokens) read() (map[string]string, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}
	data := map[string]string{}
	if len(raw) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to parse token file %s: %w", f.path, err)
	}
	return data, nil
}

func (f *FileTokens) write(data map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("failed to create token dir: %w", err)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode token file: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace token file: %w", err)
	}
	return nil
}

// redisKV is the subset of the go-redis client the token store needs.
type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisTokens shares one token between processes on the same host, e.g. the
// CLI and the gateway.
type RedisTokens struct {
	client redisKV
	key    string
}

func NewRedisTokens(addr, password, key string) *RedisTokens {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisTokens{client: c, key: redisKey(key)}
}

func newRedisTokensWith(client redisKV, key string) *RedisTokens {
	return &RedisTokens{client: client, key: redisKey(key)}
}

func redisKey(key string) string { return "carpool:session:" + key }

func (r *RedisTokens) Load(ctx context.Context) (string, error) {
	v, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load token from redis: %w", err)
	}
	return v, nil
}

func (r *RedisTokens) Save(ctx context.Context, token string) error {
	if err := r.client.Set(ctx, r.key, token, 0).Err(); err != nil {
		return fmt.Errorf("failed to save token to redis: %w", err)
	}
	return nil
}

func (r *RedisTokens) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("failed to clear token in redis: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool when the store owns one.
func (r *RedisTokens) Close() error {
	if c, ok := r.client.(*redis.Client); ok {
		return c.Close()
	}
	return nil
}

const createTokensTable = `CREATE TABLE IF NOT EXISTS client_tokens(
	key TEXT PRIMARY KEY,
	token TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`

// PostgresTokens keeps one row per key in client_tokens.
type PostgresTokens struct {
	db  *sql.DB
	key string
}

func NewPostgresTokens(ctx context.Context, dsn, key string) (*PostgresTokens, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	// quick ping
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	p := &PostgresTokens{db: db, key: key}
	if err := p.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

func (p *PostgresTokens) migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, createTokensTable); err != nil {
		return fmt.Errorf("failed to create client_tokens: %w", err)
	}
	return nil
}

func (p *PostgresTokens) Load(ctx context.Context) (string, error) {
	var token string
	err := p.db.QueryRowContext(ctx, `SELECT token FROM client_tokens WHERE key=$1`, p.key).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load token: %w", err)
	}
	return token, nil
}

func (p *PostgresTokens) Save(ctx context.Context, token string) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO client_tokens(key, token, updated_at) VALUES($1,$2,$3)
		 ON CONFLICT (key) DO UPDATE SET token=EXCLUDED.token, updated_at=EXCLUDED.updated_at`,
		p.key, token, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

func (p *PostgresTokens) Clear(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM client_tokens WHERE key=$1`, p.key); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	return nil
}

func (p *PostgresTokens) Close() error { return p.db.Close() }
