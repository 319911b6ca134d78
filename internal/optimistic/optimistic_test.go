package optimistic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type like struct {
	Liked bool
	Count int
}

func toggle(l like) like {
	if l.Liked {
		return like{Liked: false, Count: max(0, l.Count-1)}
	}
	return like{Liked: true, Count: l.Count + 1}
}

func TestSingleAttempt(t *testing.T) {
	t.Run("confirm", func(t *testing.T) {
		f := New(like{Count: 3})
		assert.Equal(t, Idle, f.Phase())

		a := f.Begin(toggle)
		assert.Equal(t, like{Liked: true, Count: 4}, f.Value())
		assert.True(t, f.Busy())

		got := a.Confirm(like{Liked: true, Count: 7})
		assert.Equal(t, like{Liked: true, Count: 7}, got)
		assert.Equal(t, Confirmed, f.Phase())
	})

	t.Run("rollback restores exact value", func(t *testing.T) {
		f := New(like{Liked: true, Count: 1})
		a := f.Begin(toggle)
		assert.Equal(t, like{Count: 0}, f.Value())

		assert.Equal(t, like{Liked: true, Count: 1}, a.Rollback())
		assert.Equal(t, RolledBack, f.Phase())
		assert.Equal(t, "rolled_back", f.Phase().String())
	})

	t.Run("commit without server state", func(t *testing.T) {
		f := New(false)
		a := f.Begin(func(v bool) bool { return !v })
		assert.True(t, a.Commit())
		assert.True(t, f.Value())
		assert.False(t, f.Busy())
	})

	t.Run("second finish is ignored", func(t *testing.T) {
		f := New(like{})
		a := f.Begin(toggle)
		a.Rollback()
		a.Confirm(like{Liked: true, Count: 9})
		assert.Equal(t, like{}, f.Value())
		assert.Equal(t, RolledBack, f.Phase())
	})
}

func TestDoubleToggle(t *testing.T) {
	start := like{Count: 10}

	t.Run("both fail", func(t *testing.T) {
		f := New(start)
		first := f.Begin(toggle)
		second := f.Begin(toggle)
		assert.Equal(t, start, f.Value())

		first.Rollback()
		assert.Equal(t, like{Liked: true, Count: 11}, f.Value())
		second.Rollback()
		assert.Equal(t, start, f.Value())
	})

	t.Run("both succeed in order", func(t *testing.T) {
		f := New(start)
		first := f.Begin(toggle)
		second := f.Begin(toggle)

		assert.Equal(t, like{Liked: false, Count: 10}, first.Confirm(like{Liked: true, Count: 11}))
		assert.Equal(t, like{Liked: false, Count: 10}, second.Confirm(like{Liked: false, Count: 10}))
		assert.Equal(t, Confirmed, f.Phase())
	})

	t.Run("responses out of order", func(t *testing.T) {
		f := New(start)
		first := f.Begin(toggle)
		second := f.Begin(toggle)

		second.Confirm(like{Liked: false, Count: 10})
		first.Confirm(like{Liked: true, Count: 11})
		assert.Equal(t, like{Liked: false, Count: 10}, f.Value())
	})

	t.Run("first fails second succeeds", func(t *testing.T) {
		f := New(start)
		first := f.Begin(toggle)
		second := f.Begin(toggle)

		first.Rollback()
		second.Confirm(like{Liked: true, Count: 11})
		assert.Equal(t, like{Liked: true, Count: 11}, f.Value())
	})
}

func TestReset(t *testing.T) {
	f := New(1)
	a := f.Begin(func(v int) int { return v + 1 })
	f.Reset(5)
	assert.Equal(t, 5, f.Value())

	a.Confirm(100)
	assert.Equal(t, 5, f.Value())
}
