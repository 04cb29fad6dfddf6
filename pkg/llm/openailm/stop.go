package openailm

import "strings"

// stopCutter truncates streamed text at the first stop sequence. It holds
// back a tail long enough to catch a sequence split across deltas.
type stopCutter struct {
	stops   []string
	maxLen  int
	pending string
	done    bool
}

func newStopCutter(stops []string) *stopCutter {
	c := &stopCutter{}
	for _, s := range stops {
		if s == "" {
			continue
		}
		c.stops = append(c.stops, s)
		if len(s) > c.maxLen {
			c.maxLen = len(s)
		}
	}
	return c
}

// feed returns the text that is safe to emit.
func (c *stopCutter) feed(delta string) string {
	if c.done {
		return ""
	}
	if len(c.stops) == 0 {
		return delta
	}
	c.pending += delta

	idx := -1
	for _, s := range c.stops {
		if i := strings.Index(c.pending, s); i >= 0 && (idx < 0 || i < idx) {
			idx = i
		}
	}
	if idx >= 0 {
		out := c.pending[:idx]
		c.pending = ""
		c.done = true
		return out
	}

	keep := c.maxLen - 1
	if len(c.pending) <= keep {
		return ""
	}
	out := c.pending[:len(c.pending)-keep]
	c.pending = c.pending[len(c.pending)-keep:]
	return out
}

// flush returns any held-back text once the stream has ended.
func (c *stopCutter) flush() string {
	out := c.pending
	c.pending = ""
	if c.done {
		return ""
	}
	return out
}
