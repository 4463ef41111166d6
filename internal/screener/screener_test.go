package screener

import (
	"testing"

	"blitz/internal/config"
	"blitz/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScreener(t *testing.T, preset string) *Screener {
	t.Helper()
	s, err := New(config.ScreenerConfig{Preset: preset})
	require.NoError(t, err)
	return s
}

func goodToken() types.TokenData {
	return types.TokenData{
		Address:         "tok",
		Symbol:          "TOK",
		AgeMinutes:      5,
		Liquidity:       5000,
		Holders:         200,
		CreatorTxnCount: 1,
		SocialMentions:  10,
		SocialScore:     0.5,
	}
}

func TestUnknownPreset(t *testing.T) {
	_, err := New(config.ScreenerConfig{Preset: "yolo"})
	assert.Error(t, err)
}

func TestGoodTokenPassesAllPresets(t *testing.T) {
	for _, preset := range []string{"strict", "default", "relaxed"} {
		s := newScreener(t, preset)
		assert.NoError(t, s.Screen(goodToken()), "preset %s", preset)
	}
}

func TestHoneypotAlwaysRejected(t *testing.T) {
	token := goodToken()
	token.IsHoneypot = true
	for _, preset := range []string{"strict", "default", "relaxed"} {
		s := newScreener(t, preset)
		assert.Error(t, s.Screen(token), "preset %s", preset)
	}
}

func TestRejectionCollectsAllReasons(t *testing.T) {
	s := newScreener(t, "default")
	token := goodToken()
	token.AgeMinutes = 60
	token.Liquidity = 100
	token.Holders = 5

	err := s.Screen(token)
	var rej *RejectionError
	require.ErrorAs(t, err, &rej)
	assert.Len(t, rej.Reasons, 3)
}

func TestPresetBandsDiffer(t *testing.T) {
	token := goodToken()
	token.AgeMinutes = 20 // past default's 15m window, inside relaxed's 25m

	assert.Error(t, newScreener(t, "default").Screen(token))
	assert.NoError(t, newScreener(t, "relaxed").Screen(token))
}

func TestStrictRequiresSocialTraction(t *testing.T) {
	token := goodToken()
	token.SocialMentions = 3

	assert.Error(t, newScreener(t, "strict").Screen(token))
	assert.NoError(t, newScreener(t, "default").Screen(token))
}

func TestSelectBestPrefersScore(t *testing.T) {
	s := newScreener(t, "default")

	weak := goodToken()
	weak.Address = "weak"
	weak.SocialScore = 0.1

	strong := goodToken()
	strong.Address = "strong"
	strong.SocialScore = 0.9

	bad := goodToken()
	bad.Address = "bad"
	bad.IsHoneypot = true

	best, ok := s.SelectBest([]types.TokenData{weak, bad, strong})
	require.True(t, ok)
	assert.Equal(t, "strong", best.Address)
}

func TestSelectBestEmpty(t *testing.T) {
	s := newScreener(t, "default")
	_, ok := s.SelectBest(nil)
	assert.False(t, ok)

	bad := goodToken()
	bad.IsHoneypot = true
	_, ok = s.SelectBest([]types.TokenData{bad})
	assert.False(t, ok)
}
