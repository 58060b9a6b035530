package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupViperDefaults(t *testing.T) {
	v := SetupViper("")
	cfg, err := New(v)

	require.NoError(t, err)
	assert.Equal(t, uint64(0), cfg.AuctionTimeouts.Default)
	assert.False(t, cfg.TmaxAdjustments.Enabled)
	assert.True(t, cfg.DebugAllow)
	assert.NotEmpty(t, cfg.EEACountries)
	assert.Contains(t, cfg.CurrencyConverter.FetchURL, "currency-file")
}

func TestNewValidation(t *testing.T) {
	v := SetupViper("")
	v.Set("auction_timeouts_ms.default", 1000)
	v.Set("auction_timeouts_ms.max", 500)

	_, err := New(v)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "auction_timeouts_ms.max cannot be less than auction_timeouts_ms.default")
}

func TestLimitAuctionTimeout(t *testing.T) {
	testCases := []struct {
		name      string
		timeouts  AuctionTimeouts
		requested time.Duration
		expected  time.Duration
	}{
		{
			name:      "no limits",
			timeouts:  AuctionTimeouts{},
			requested: 100 * time.Millisecond,
			expected:  100 * time.Millisecond,
		},
		{
			name:      "zero requested uses default",
			timeouts:  AuctionTimeouts{Default: 250},
			requested: 0,
			expected:  250 * time.Millisecond,
		},
		{
			name:      "requested above max is capped",
			timeouts:  AuctionTimeouts{Max: 500},
			requested: 2 * time.Second,
			expected:  500 * time.Millisecond,
		},
		{
			name:      "requested below max passes through",
			timeouts:  AuctionTimeouts{Max: 500},
			requested: 100 * time.Millisecond,
			expected:  100 * time.Millisecond,
		},
		{
			name:      "zero requested with no default uses max",
			timeouts:  AuctionTimeouts{Max: 500},
			requested: 0,
			expected:  500 * time.Millisecond,
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, test.timeouts.LimitAuctionTimeout(test.requested))
		})
	}
}
