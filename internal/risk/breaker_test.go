package risk_test

import (
	"testing"
	"time"

	"github.com/quantedge/options-engine/internal/risk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBreakerConfig() risk.BreakerConfig {
	return risk.BreakerConfig{
		FailureThreshold: 5,
		FailureWindow:    time.Minute,
		Cooldown:         30 * time.Millisecond,
	}
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := risk.NewBreaker(testBreakerConfig())
	require.Equal(t, risk.BreakerClosed, b.State())

	for i := 0; i < 4; i++ {
		b.RecordFailure()
		assert.Equal(t, risk.BreakerClosed, b.State())
	}

	b.RecordFailure()
	assert.Equal(t, risk.BreakerOpen, b.State())
	assert.False(t, b.Allow(), "open breaker must reject during cooldown")
}

func TestBreakerProbeAfterCooldown(t *testing.T) {
	b := risk.NewBreaker(testBreakerConfig())
	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	require.False(t, b.Allow())

	time.Sleep(40 * time.Millisecond)

	// Exactly one probe after the cooldown.
	assert.True(t, b.Allow())
	assert.Equal(t, risk.BreakerHalfOpen, b.State())
	assert.False(t, b.Allow(), "only one probe per cycle")

	b.RecordSuccess()
	assert.Equal(t, risk.BreakerClosed, b.State())
	assert.True(t, b.Allow())
}

func TestBreakerProbeFailureReopens(t *testing.T) {
	b := risk.NewBreaker(testBreakerConfig())
	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}

	time.Sleep(40 * time.Millisecond)
	require.True(t, b.Allow())

	b.RecordFailure()
	assert.Equal(t, risk.BreakerOpen, b.State())
	assert.False(t, b.Allow(), "cooldown restarts after a failed probe")

	// It can recover again after another cooldown.
	time.Sleep(40 * time.Millisecond)
	assert.True(t, b.Allow())
	b.RecordSuccess()
	assert.Equal(t, risk.BreakerClosed, b.State())
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := risk.NewBreaker(testBreakerConfig())
	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	b.RecordSuccess()
	assert.Zero(t, b.Failures())

	b.RecordFailure()
	assert.Equal(t, risk.BreakerClosed, b.State())
}
