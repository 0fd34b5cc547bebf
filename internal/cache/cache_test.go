package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/core"
	"ledger/internal/ledger"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestLRUCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache[string, int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	_, _ = c.Get("a")
	c.Set("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok, "b was least recently used")
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, c.Size())
}

func TestLRUCacheExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[string, string](10, time.Minute, WithClock(clock.now))
	c.Set("a", "x")
	c.Set("b", "y")

	clock.advance(30 * time.Second)
	c.Set("b", "z")
	clock.advance(45 * time.Second)

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.CleanExpired(), "a was already dropped by Get")
	v, ok := c.Get("b")
	assert.True(t, ok)
	assert.Equal(t, "z", v)

	clock.advance(time.Minute)
	assert.Equal(t, 1, c.CleanExpired())
	assert.Equal(t, 0, c.Size())
}

func TestGetOrLoadDoesNotCacheInvalidatedLoad(t *testing.T) {
	c := NewLRUCache[string, int](10, time.Minute)

	v, hit, err := GetOrLoad(c, "k", func() (int, error) {
		// a mutation lands while the load is in flight
		c.Delete("k")
		return 1, nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 1, v)
	_, ok := c.Get("k")
	assert.False(t, ok)

	_, _, err = GetOrLoad(c, "k", func() (int, error) { return 2, nil })
	require.NoError(t, err)
	v, hit, err = GetOrLoad(c, "k", func() (int, error) { return 3, errors.New("not called") })
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 2, v)

	_, _, err = GetOrLoad(c, "other", func() (int, error) { return 0, errors.New("boom") })
	assert.EqualError(t, err, "boom")
	assert.Equal(t, 1, c.Size())
}

func TestInvalidatorDropsTouchedMonths(t *testing.T) {
	jan, feb, mar := core.NewCompetency(2025, 1), core.NewCompetency(2025, 2), core.NewCompetency(2025, 3)
	c := NewLRUCache[core.Competency, []string](10, time.Minute)
	c.Set(jan, []string{"a"})
	c.Set(feb, []string{"b"})
	c.Set(mar, []string{"c"})

	inv := NewInvalidator[[]string](c)
	require.NoError(t, inv.Publish(context.Background(), ledger.Event{
		Kind:         ledger.TransactionUpdated,
		Competencies: []core.Competency{jan, mar},
	}))

	_, ok := c.Get(jan)
	assert.False(t, ok)
	_, ok = c.Get(feb)
	assert.True(t, ok)
	_, ok = c.Get(mar)
	assert.False(t, ok)
}

func TestManagerCleansRegisteredCaches(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	a := NewLRUCache[string, int](10, time.Second, WithClock(clock.now))
	b := NewLRUCache[int, int](10, time.Hour, WithClock(clock.now))
	a.Set("x", 1)
	b.Set(1, 1)

	m := NewManager()
	m.Register(a)
	m.Register(b)
	clock.advance(time.Minute)
	assert.Equal(t, 1, m.CleanNow())

	m.StartCleanup(time.Millisecond)
	m.Stop()
	m.Stop()
}
