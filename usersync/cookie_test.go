package usersync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCookieSyncAndGetUID(t *testing.T) {
	cookie := NewCookie()

	require.NoError(t, cookie.Sync("appnexus", "uid-123"))

	uid, found, active := cookie.GetUID("appnexus")
	assert.Equal(t, "uid-123", uid)
	assert.True(t, found)
	assert.True(t, active)

	uid, found, active = cookie.GetUID("rubicon")
	assert.Empty(t, uid)
	assert.False(t, found)
	assert.False(t, active)
}

func TestCookieOptOut(t *testing.T) {
	cookie := NewCookie()
	require.NoError(t, cookie.Sync("appnexus", "uid-123"))

	cookie.SetOptOut(true)

	assert.False(t, cookie.AllowSyncs())
	assert.Error(t, cookie.Sync("appnexus", "uid-456"))
	_, found, _ := cookie.GetUID("appnexus")
	assert.False(t, found)
	assert.False(t, cookie.HasAnyLiveSyncs())
}

func TestCookieEncodeDecodeRoundTrip(t *testing.T) {
	cookie := NewCookie()
	require.NoError(t, cookie.Sync("appnexus", "uid-123"))
	require.NoError(t, cookie.Sync("rubicon", "uid-456"))

	encoded, err := cookie.Encode()
	require.NoError(t, err)

	decoded := ParseCookie(encoded)
	assert.Equal(t, map[string]string{"appnexus": "uid-123", "rubicon": "uid-456"}, decoded.GetUIDs())
	assert.True(t, decoded.HasLiveSync("appnexus"))
}

func TestParseCookieCorrupted(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{name: "not-base64", value: "not base64!"},
		{name: "not-json", value: "bm90IGpzb24="},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cookie := ParseCookie(test.value)
			require.NotNil(t, cookie)
			assert.Empty(t, cookie.GetUIDs())
			assert.True(t, cookie.AllowSyncs())
		})
	}
}

func TestUnsync(t *testing.T) {
	cookie := NewCookie()
	require.NoError(t, cookie.Sync("appnexus", "uid-123"))

	cookie.Unsync("appnexus")

	assert.False(t, cookie.HasLiveSync("appnexus"))
	assert.False(t, cookie.HasAnyLiveSyncs())
}

func TestNilCookieIsSafe(t *testing.T) {
	var cookie *Cookie

	uid, found, active := cookie.GetUID("appnexus")
	assert.Empty(t, uid)
	assert.False(t, found)
	assert.False(t, active)

	assert.False(t, cookie.AllowSyncs())
	assert.False(t, cookie.HasAnyLiveSyncs())
	assert.Empty(t, cookie.GetUIDs())
}
