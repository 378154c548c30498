package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contactlink/internal/config"
)

func TestNew_Disabled(t *testing.T) {
	c, err := New(context.Background(), config.RedisConfig{})
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestNew_BadURL(t *testing.T) {
	_, err := New(context.Background(), config.RedisConfig{URL: "http://not-redis"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse redis URL")
}

func TestNew_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := New(ctx, config.RedisConfig{
		URL:         "redis://127.0.0.1:1/0",
		PoolSize:    1,
		DialTimeout: 200 * time.Millisecond,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping failed")
}

func TestOptions(t *testing.T) {
	const url = "redis://:secret@localhost:6380/3?pool_size=7"

	tests := []struct {
		name     string
		cfg      config.RedisConfig
		wantPool int
		wantDial time.Duration
	}{
		{name: "url settings kept", cfg: config.RedisConfig{URL: url}, wantPool: 7},
		{
			name:     "config overrides",
			cfg:      config.RedisConfig{URL: url, PoolSize: 3, DialTimeout: time.Second},
			wantPool: 3,
			wantDial: time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := options(tt.cfg)
			require.NoError(t, err)

			assert.Equal(t, "localhost:6380", opts.Addr)
			assert.Equal(t, "secret", opts.Password)
			assert.Equal(t, 3, opts.DB)
			assert.Equal(t, tt.wantPool, opts.PoolSize)
			if tt.wantDial > 0 {
				assert.Equal(t, tt.wantDial, opts.DialTimeout)
			}
		})
	}
}
