package di

import (
	"testing"

	"EdgeScan/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeAppWithoutInfrastructure(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"

	app, err := InitializeApp(cfg)
	require.NoError(t, err)
	assert.NotNil(t, app)
}

func TestOptionalProvidersAreNilWhenDisabled(t *testing.T) {
	cfg := config.Default()

	ch, err := ProvideClickHouseClient(cfg, nil)
	require.NoError(t, err)
	assert.Nil(t, ch)
	assert.Nil(t, ProvideCandleStore(ch, cfg, nil))

	rc, err := ProvideRedisCache(cfg)
	require.NoError(t, err)
	assert.Nil(t, rc)
	assert.Nil(t, ProvideResultCache(rc, cfg))

	p, err := ProvideKafkaProducer(cfg)
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Nil(t, ProvideEventPublisher(p, cfg))

	consumer, err := ProvideKafkaConsumer(cfg, nil)
	require.NoError(t, err)
	assert.Nil(t, consumer)
	assert.Nil(t, ProvideRedisQueue(cfg, nil, rc, nil))
}

func TestQueueConfigFromSettings(t *testing.T) {
	cfg := config.Default()
	qc := queueConfig(cfg)
	assert.Equal(t, 1, qc.Workers)
	assert.Equal(t, 3, qc.RetryLimit)
	assert.Equal(t, cfg.Queue.RetryDelay, qc.RetryDelay)
}
