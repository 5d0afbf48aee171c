package runtime_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/hexlift/hexlift/runtime"
)

func TestCacheLookupOrInsertFillsOnMiss(t *testing.T) {
	c := runtime.NewCache()
	var fillCalls int
	fill := func() (runtime.CacheEntry, error) {
		fillCalls++
		return runtime.CacheEntry{GuestPC: 0x1000, HostEntry: 0xdead}, nil
	}

	e1, err := c.LookupOrInsert(0x1000, fill)
	require.NoError(t, err)
	require.Equal(t, uintptr(0xdead), e1.HostEntry)
	require.Equal(t, 1, fillCalls)

	e2, err := c.LookupOrInsert(0x1000, fill)
	require.NoError(t, err)
	require.Equal(t, e1, e2)
	require.Equal(t, 1, fillCalls, "second lookup must hit the cache, not call fill again")
}

func TestCacheLookupOrInsertPropagatesFillError(t *testing.T) {
	c := runtime.NewCache()
	boom := errors.New("translation failed")
	_, err := c.LookupOrInsert(0x2000, func() (runtime.CacheEntry, error) {
		return runtime.CacheEntry{}, boom
	})
	require.Error(t, err)
	require.ErrorIs(t, err, boom)

	// A failed fill must not poison the cache: a later successful fill for
	// the same PC should still run.
	var filled bool
	_, err = c.LookupOrInsert(0x2000, func() (runtime.CacheEntry, error) {
		filled = true
		return runtime.CacheEntry{GuestPC: 0x2000, HostEntry: 1}, nil
	})
	require.NoError(t, err)
	require.True(t, filled)
}

func TestDispatcherRunReturnsOnNaturalCompletion(t *testing.T) {
	cache := runtime.NewCache()
	translate := func(pc uint64) (uintptr, error) { return uintptr(pc + 1), nil }
	invoke := func(entry uintptr) (uint64, int) { return 0, 0 }
	d := runtime.NewDispatcher(cache, translate, invoke, nil)

	require.NoError(t, d.Run(0x1000))
}

func TestDispatcherRunFollowsChainedPCs(t *testing.T) {
	cache := runtime.NewCache()
	var translated []uint64
	translate := func(pc uint64) (uintptr, error) {
		translated = append(translated, pc)
		return uintptr(pc), nil
	}
	calls := 0
	invoke := func(entry uintptr) (uint64, int) {
		calls++
		if calls < 3 {
			return uint64(entry) + 1, 0
		}
		return 0, 0
	}
	d := runtime.NewDispatcher(cache, translate, invoke, nil)

	require.NoError(t, d.Run(0x1000))
	require.Equal(t, []uint64{0x1000, 0x1001, 0x1002}, translated)
}

func TestDispatcherRunPropagatesUntranslatableStatus(t *testing.T) {
	cache := runtime.NewCache()
	translate := func(pc uint64) (uintptr, error) { return uintptr(pc), nil }
	invoke := func(entry uintptr) (uint64, int) { return 0xbad, 1 }
	d := runtime.NewDispatcher(cache, translate, invoke, nil)

	err := d.Run(0x1000)
	require.Error(t, err)
	require.ErrorIs(t, err, runtime.ErrUntranslatable)
}
