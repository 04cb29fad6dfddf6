package openailm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStopCutter(t *testing.T) {
	tests := []struct {
		name   string
		stops  []string
		deltas []string
		want   string
	}{
		{name: "no stops", deltas: []string{"a", "b"}, want: "ab"},
		{name: "stop inside one delta", stops: []string{"\n\n"}, deltas: []string{"line\n\nmore"}, want: "line"},
		{name: "stop split across deltas", stops: []string{"END"}, deltas: []string{"abc E", "N", "D rest"}, want: "abc "},
		{name: "no match flushes tail", stops: []string{"END"}, deltas: []string{"abc", "EN"}, want: "abcEN"},
		{name: "earliest stop wins", stops: []string{"zz", "b"}, deltas: []string{"abzz"}, want: "a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newStopCutter(tt.stops)
			var got string
			for _, d := range tt.deltas {
				got += c.feed(d)
			}
			got += c.flush()
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsTransientError(t *testing.T) {
	c := &Client{}
	assert.False(t, c.IsTransientError(nil))
	assert.True(t, c.IsTransientError(errors.New("POST: 503 Service Unavailable")))
	assert.True(t, c.IsTransientError(errors.New("429 Too Many Requests: rate limit")))
	assert.False(t, c.IsTransientError(errors.New("401 Unauthorized")))
}

func TestNormalizeStopReason(t *testing.T) {
	assert.Equal(t, "stop", normalizeStopReason(""))
	assert.Equal(t, "length", normalizeStopReason("LENGTH"))
	assert.Equal(t, "content_filter", normalizeStopReason("content_filter"))
}

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewClient("openai", "", "gpt-4o-mini", "")
	assert.Error(t, err)
}
