package utils

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var (
	// ErrInvalidAPIKey signals that the provided API key is not known.
	ErrInvalidAPIKey = errors.New("invalid api key")
	// ErrTokenStoreNotReady signals that the token store has not been loaded yet.
	ErrTokenStoreNotReady = errors.New("token store not ready")
)

// APIToken is one row of the api_tokens table.
type APIToken struct {
	Token     string
	RateLimit int
	Label     string
}

// TokenStore caches API tokens and their per-interval export limits.
type TokenStore struct {
	mu    sync.RWMutex
	cache map[string]int

	dbMu sync.Mutex
	dsn  string
	db   *sql.DB
}

// Tokens is the store consulted by the HTTP middleware.
var Tokens = &TokenStore{}

const tokensDDL = `CREATE TABLE IF NOT EXISTS api_tokens (
	token TEXT PRIMARY KEY,
	rate_limit INTEGER NOT NULL DEFAULT 30,
	label TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

func postgresDSN(cfg PostgresConfig) (string, error) {
	if strings.HasPrefix(cfg.Host, "postgres://") || strings.HasPrefix(cfg.Host, "postgresql://") {
		return cfg.Host, nil
	}
	switch {
	case cfg.Host == "":
		return "", fmt.Errorf("postgres host is empty")
	case cfg.Database == "":
		return "", fmt.Errorf("postgres database is empty")
	case cfg.User == "":
		return "", fmt.Errorf("postgres user is empty")
	}

	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	hostPort := cfg.Host
	switch {
	case strings.HasPrefix(hostPort, "["):
		if !strings.Contains(hostPort, "]:") {
			hostPort = fmt.Sprintf("%s:%d", hostPort, port)
		}
	case strings.Count(hostPort, ":") >= 2:
		hostPort = fmt.Sprintf("[%s]:%d", hostPort, port)
	case !strings.Contains(hostPort, ":"):
		hostPort = fmt.Sprintf("%s:%d", hostPort, port)
	}

	u := &url.URL{Scheme: "postgres", Host: hostPort, Path: "/" + cfg.Database}
	if cfg.Password != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	} else {
		u.User = url.User(cfg.User)
	}
	if cfg.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", cfg.SSLMode)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (s *TokenStore) open(ctx context.Context, cfg PostgresConfig) (*sql.DB, error) {
	dsn, err := postgresDSN(cfg)
	if err != nil {
		return nil, err
	}

	s.dbMu.Lock()
	defer s.dbMu.Unlock()

	if s.db != nil && s.dsn == dsn {
		return s.db, nil
	}
	if s.db != nil {
		_ = s.db.Close()
		s.db, s.dsn = nil, ""
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(3)
	db.SetMaxIdleConns(3)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(pingCtx, tokensDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create api_tokens: %w", err)
	}

	s.db, s.dsn = db, dsn
	return db, nil
}

// LoadFromPostgres replaces the cache with the contents of api_tokens.
func (s *TokenStore) LoadFromPostgres(ctx context.Context, cfg PostgresConfig) error {
	db, err := s.open(ctx, cfg)
	if err != nil {
		return err
	}

	qctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := db.QueryContext(qctx, `SELECT token, rate_limit, label FROM api_tokens`)
	if err != nil {
		return err
	}
	defer rows.Close()

	var list []APIToken
	for rows.Next() {
		var t APIToken
		if err := rows.Scan(&t.Token, &t.RateLimit, &t.Label); err != nil {
			return err
		}
		list = append(list, t)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	s.Load(list)
	return nil
}

// Load replaces the cache; used by LoadFromPostgres and by tests.
func (s *TokenStore) Load(list []APIToken) {
	cache := make(map[string]int, len(list))
	for _, t := range list {
		cache[t.Token] = t.RateLimit
	}
	s.mu.Lock()
	s.cache = cache
	s.mu.Unlock()
}

// LoadMap is Load for a token -> limit map.
func (s *TokenStore) LoadMap(m map[string]int) {
	list := make([]APIToken, 0, len(m))
	for k, v := range m {
		list = append(list, APIToken{Token: k, RateLimit: v})
	}
	s.Load(list)
}

// Reset forgets every cached token, returning the store to the not-ready state.
func (s *TokenStore) Reset() {
	s.mu.Lock()
	s.cache = nil
	s.mu.Unlock()
}

// Ready reports whether the cache has been loaded at least once.
func (s *TokenStore) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache != nil
}

// Validate reports whether token is known.
func (s *TokenStore) Validate(token string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.cache[token]
	return ok
}

// RateLimit returns the limit for token, or 0 (unlimited) if unknown.
func (s *TokenStore) RateLimit(token string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache[token]
}

// RefreshPeriodically reloads tokens every interval until stop is closed.
func (s *TokenStore) RefreshPeriodically(cfg PostgresConfig, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.LoadFromPostgres(context.Background(), cfg); err != nil {
				Error("Failed to reload API tokens", "error", err)
			}
		case <-stop:
			return
		}
	}
}

// Close releases the database handle.
func (s *TokenStore) Close() error {
	s.dbMu.Lock()
	defer s.dbMu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db, s.dsn = nil, ""
	return err
}
