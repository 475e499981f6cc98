package dedupe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheCheckAndMark(t *testing.T) {
	tests := map[string]struct {
		maxSize int
		steps   func(c *Cache, now *time.Time) []bool
		exp     []bool
	}{
		"A new key should not be a duplicate.": {
			steps: func(c *Cache, now *time.Time) []bool {
				return []bool{c.CheckAndMark("a")}
			},
			exp: []bool{false},
		},

		"A seen key should be a duplicate.": {
			steps: func(c *Cache, now *time.Time) []bool {
				return []bool{c.CheckAndMark("a"), c.CheckAndMark("a"), c.CheckAndMark("b")}
			},
			exp: []bool{false, true, false},
		},

		"An expired key should not be a duplicate.": {
			steps: func(c *Cache, now *time.Time) []bool {
				r1 := c.CheckAndMark("a")
				*now = now.Add(2 * time.Minute)
				return []bool{r1, c.CheckAndMark("a"), c.CheckAndMark("a")}
			},
			exp: []bool{false, false, true},
		},

		"Empty keys are never duplicates.": {
			steps: func(c *Cache, now *time.Time) []bool {
				return []bool{c.CheckAndMark(""), c.CheckAndMark("")}
			},
			exp: []bool{false, false},
		},

		"When full the oldest key should be evicted.": {
			maxSize: 2,
			steps: func(c *Cache, now *time.Time) []bool {
				c.CheckAndMark("a")
				c.CheckAndMark("b")
				c.CheckAndMark("c")
				return []bool{c.CheckAndMark("c"), c.CheckAndMark("a")}
			},
			exp: []bool{true, false},
		},

		"A forgotten key should be accepted again.": {
			steps: func(c *Cache, now *time.Time) []bool {
				r1 := c.CheckAndMark("a")
				c.Forget("a")
				c.Forget("missing")
				return []bool{r1, c.CheckAndMark("a"), c.CheckAndMark("a")}
			},
			exp: []bool{false, false, true},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)

			c, err := NewCache(CacheConfig{TTL: time.Minute, MaxSize: test.maxSize})
			require.NoError(err)
			now := time.Now()
			c.timeNowFn = func() time.Time { return now }

			got := test.steps(c, &now)
			assert.Equal(t, test.exp, got)
		})
	}
}

func TestCacheCleanup(t *testing.T) {
	c, err := NewCache(CacheConfig{TTL: time.Minute})
	require.NoError(t, err)
	now := time.Now()
	c.timeNowFn = func() time.Time { return now }

	c.CheckAndMark("a")
	now = now.Add(30 * time.Second)
	c.CheckAndMark("b")
	now = now.Add(45 * time.Second)
	c.cleanup()

	assert.Equal(t, 1, c.Len())
	assert.True(t, c.CheckAndMark("b"))
}
