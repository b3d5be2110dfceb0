package chat

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	t.Run("register_and_lookup", func(t *testing.T) {
		r := NewRegistry()
		ch := &fakeChannel{}

		prev := r.Register("alice", ch)
		assert.Nil(t, prev)

		got, ok := r.Lookup("alice")
		require.True(t, ok)
		assert.Same(t, ch, got)
		assert.Equal(t, 1, r.Len())
	})

	t.Run("lookup_missing", func(t *testing.T) {
		r := NewRegistry()
		_, ok := r.Lookup("nobody")
		assert.False(t, ok)
	})

	t.Run("new_connection_supersedes_old", func(t *testing.T) {
		r := NewRegistry()
		old := &fakeChannel{}
		newer := &fakeChannel{}

		r.Register("alice", old)
		prev := r.Register("alice", newer)
		assert.Same(t, old, prev)
		assert.Empty(t, old.closed, "registry must not close the superseded channel")

		got, ok := r.Lookup("alice")
		require.True(t, ok)
		assert.Same(t, newer, got)
		assert.Equal(t, 1, r.Len())
	})

	t.Run("stale_unregister_is_noop", func(t *testing.T) {
		r := NewRegistry()
		old := &fakeChannel{}
		newer := &fakeChannel{}

		r.Register("alice", old)
		r.Register("alice", newer)

		assert.False(t, r.Unregister("alice", old))
		got, ok := r.Lookup("alice")
		require.True(t, ok)
		assert.Same(t, newer, got)

		assert.True(t, r.Unregister("alice", newer))
		_, ok = r.Lookup("alice")
		assert.False(t, ok)
	})

	t.Run("unregister_unknown_owner", func(t *testing.T) {
		r := NewRegistry()
		assert.False(t, r.Unregister("ghost", &fakeChannel{}))
	})
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			owner := fmt.Sprintf("user-%d", i%10)
			ch := &fakeChannel{}
			r.Register(owner, ch)
			r.Lookup(owner)
			r.Unregister(owner, ch)
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, r.Len(), 10)
}
