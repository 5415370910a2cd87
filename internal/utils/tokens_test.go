package utils

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenStore_LoadAndValidate(t *testing.T) {
	s := &TokenStore{}
	assert.False(t, s.Ready())

	s.LoadMap(map[string]int{"a": 5, "b": 10})

	assert.True(t, s.Ready())
	assert.True(t, s.Validate("a"))
	assert.Equal(t, 5, s.RateLimit("a"))
	assert.True(t, s.Validate("b"))
	assert.Equal(t, 10, s.RateLimit("b"))
	assert.False(t, s.Validate("c"))
	assert.Equal(t, 0, s.RateLimit("c"))
}

func TestTokenStore_ReloadReplacesCache(t *testing.T) {
	s := &TokenStore{}
	s.Load([]APIToken{{Token: "a", RateLimit: 5}, {Token: "b", RateLimit: 10, Label: "kiosk"}})
	assert.Equal(t, 10, s.RateLimit("b"))

	s.LoadMap(map[string]int{"a": 7, "c": 12})

	assert.Equal(t, 7, s.RateLimit("a"))
	assert.False(t, s.Validate("b"))
	assert.Equal(t, 12, s.RateLimit("c"))

	s.Reset()
	assert.False(t, s.Ready())
	assert.NoError(t, s.Close())
}

func TestPostgresDSN_BuildsURL(t *testing.T) {
	dsn, err := postgresDSN(PostgresConfig{
		Host:     "localhost",
		Database: "idsheet",
		User:     "user",
		Password: "p@ss word",
		SSLMode:  "disable",
	})
	assert.NoError(t, err)

	u, err := url.Parse(dsn)
	assert.NoError(t, err)
	assert.Equal(t, "postgres", u.Scheme)
	assert.Equal(t, "localhost:5432", u.Host)
	assert.Equal(t, "/idsheet", u.Path)
	assert.Equal(t, "user", u.User.Username())
	pw, ok := u.User.Password()
	assert.True(t, ok)
	assert.Equal(t, "p@ss word", pw)
	assert.Equal(t, "disable", u.Query().Get("sslmode"))
}

func TestPostgresDSN_HostVariants(t *testing.T) {
	raw := "postgres://u:p@localhost:5432/db?sslmode=disable"
	dsn, err := postgresDSN(PostgresConfig{Host: raw})
	assert.NoError(t, err)
	assert.Equal(t, raw, dsn)

	dsn, err = postgresDSN(PostgresConfig{Host: "::1", Port: 6543, Database: "d", User: "u"})
	assert.NoError(t, err)
	u, _ := url.Parse(dsn)
	assert.Equal(t, "[::1]:6543", u.Host)

	_, err = postgresDSN(PostgresConfig{Host: "db"})
	assert.Error(t, err)
	_, err = postgresDSN(PostgresConfig{})
	assert.Error(t, err)
}
