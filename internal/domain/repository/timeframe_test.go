package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTimeframe(t *testing.T) {
	assert.Equal(t, TF1h, NormalizeTimeframe(""))
	assert.Equal(t, TF4h, NormalizeTimeframe("4h"))
	assert.Equal(t, TF1h, NormalizeTimeframe("7m"))
	assert.Equal(t, 4*time.Hour, TF4h.Duration())
	assert.Zero(t, Timeframe("2w").Duration())
}
