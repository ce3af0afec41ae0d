package verifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeText(t *testing.T) {
	cases := []struct{ in, want string }{
		{"hello   world", "hello world"},
		{"line one\r\nline two", "line one line two"},
		{"check this out https://t.co/abc123", "check this out"},
		{"  leading and trailing  ", "leading and trailing"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, normalizeText(c.in))
	}
}

func TestTextsMatch_ExactAfterNormalization(t *testing.T) {
	assert.True(t, textsMatch("hello world", "hello   world"))
}

func TestTextsMatch_PrefixRequiresHundredChars(t *testing.T) {
	short := "short prefix"
	live := short + " plus a little extra that makes it longer overall"
	assert.False(t, textsMatch(short, live), "short prefix (<100 chars) must not match via the prefix rule")

	longPrefix := ""
	for len(normalizeText(longPrefix)) < 100 {
		longPrefix += "word "
	}
	liveLong := longPrefix + "trailing content the miner never saw"
	assert.True(t, textsMatch(longPrefix, liveLong), ">=100-char prefix match should be accepted")
}

func TestTextsMatch_Mismatch(t *testing.T) {
	assert.False(t, textsMatch("this is one post", "this is a totally different post"))
}

func TestMetricTolerance(t *testing.T) {
	cases := []struct {
		live int64
		want int64
	}{
		{0, 1},
		{-5, 1},
		{1, 1},
		{10, 1},
		{11, 2},
		{100, 10},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, metricTolerance(c.live))
	}
}

func TestMetricInflated(t *testing.T) {
	assert.False(t, metricInflated(105, 100), "within-tolerance overstatement must not be flagged")
	assert.True(t, metricInflated(115, 100), "beyond-tolerance overstatement must be flagged")
	assert.False(t, metricInflated(50, 100), "understatement must never be flagged")
}
