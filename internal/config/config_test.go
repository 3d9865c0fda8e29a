package config

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "progress-sync", cfg.AppName)
	assert.Equal(t, BackendNone, cfg.RemoteBackend)
	assert.Equal(t, time.Second, cfg.SyncDebounce)
	assert.NotEmpty(t, cfg.DeviceID)
	assert.False(t, cfg.ObjectStorageEnabled())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("REMOTE_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "cache:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("SYNC_DEBOUNCE", "250ms")
	t.Setenv("DEVICE_ID", "laptop")
	t.Setenv("USER_ID", "u-42")
	t.Setenv("LOCAL_STORE_IN_MEMORY", "true")
	t.Setenv("LOCAL_STORE_PATH", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendRedis, cfg.RemoteBackend)
	assert.Equal(t, "cache:6379", cfg.RedisAddr)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, 250*time.Millisecond, cfg.SyncDebounce)
	assert.Equal(t, "laptop", cfg.DeviceID)
	assert.Equal(t, "u-42", cfg.UserID)
	assert.True(t, cfg.LocalStoreInMemory)
}

func TestMalformedValuesFallBack(t *testing.T) {
	t.Setenv("SYNC_DEBOUNCE", "soon")
	t.Setenv("REDIS_DB", "two")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.SyncDebounce)
	assert.Zero(t, cfg.RedisDB)
}

func TestLoadRejectsInvalidConfiguration(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown backend":       {"REMOTE_BACKEND": "dynamo"},
		"postgres without url":  {"REMOTE_BACKEND": "postgres"},
		"redis without address": {"REMOTE_BACKEND": "redis"},
		"object without bucket": {"REMOTE_BACKEND": "object"},
		"object without keys":   {"OBJECT_ENDPOINT": "localhost:9000"},
		"bad log level":         {"LOG_LEVEL": "loud"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestResourcesWithoutRemote(t *testing.T) {
	t.Setenv("LOCAL_STORE_IN_MEMORY", "true")
	cfg, err := Load()
	require.NoError(t, err)

	ctx := context.Background()
	res, err := NewResources(ctx, cfg, zerolog.New(io.Discard))
	require.NoError(t, err)

	remote, err := res.Remote(ctx)
	require.NoError(t, err)
	assert.Nil(t, remote)
	assert.NoError(t, res.HealthCheck(ctx))

	require.NoError(t, res.Local.Set(ctx, "k", []byte("v")))
	assert.NoError(t, res.Close())
	assert.Error(t, res.HealthCheck(ctx))
}
