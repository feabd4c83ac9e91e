package clickhouse

import (
	"testing"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildOptions(t *testing.T) {
	cfg := ClientConfig{
		Host:        "ch.local",
		Port:        9440,
		Database:    "edgescan",
		User:        "reader",
		Password:    "secret",
		DialTimeout: 2 * time.Second,
		Compress:    true,
		MaxExecTime: 90 * time.Second,
	}
	opts := buildOptions(cfg)
	assert.Equal(t, []string{"ch.local:9440"}, opts.Addr)
	assert.Equal(t, "edgescan", opts.Auth.Database)
	assert.Equal(t, "reader", opts.Auth.Username)
	assert.Equal(t, ch.Native, opts.Protocol)
	require.NotNil(t, opts.Compression)
	assert.Equal(t, ch.CompressionLZ4, opts.Compression.Method)
	assert.Equal(t, 90, opts.Settings["max_execution_time"])

	cfg.UseHTTP, cfg.Compress, cfg.MaxExecTime = true, false, 0
	opts = buildOptions(cfg)
	assert.Equal(t, ch.HTTP, opts.Protocol)
	assert.Nil(t, opts.Compression)
	assert.NotContains(t, opts.Settings, "max_execution_time")
}

func TestNewClientRequiresHost(t *testing.T) {
	_, err := NewClient(WithPort(9000))
	assert.ErrorContains(t, err, "host is required")
}
