package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStoreNotifiesListeners(t *testing.T) {
	t.Parallel()

	store := NewStore()
	var seen []string
	store.Subscribe(func(s Session, ok bool) {
		if ok {
			seen = append(seen, "in:"+s.User.ID)
			return
		}
		seen = append(seen, "out")
	})
	store.Subscribe(nil)

	store.Clear()
	store.Set(Session{User: User{ID: "u-1"}})
	store.Set(Session{User: User{ID: "u-2"}})
	store.Clear()
	store.Clear()

	assert.Equal(t, []string{"in:u-1", "in:u-2", "out"}, seen)
	_, ok := store.Session()
	assert.False(t, ok)
}

func TestStoreListenerMaySubscribe(t *testing.T) {
	t.Parallel()

	store := NewStore()
	calls := 0
	store.Subscribe(func(Session, bool) {
		calls++
		store.Subscribe(func(Session, bool) {})
	})

	store.Set(Session{User: User{ID: "u-1"}})
	session, ok := store.Session()
	assert.True(t, ok)
	assert.Equal(t, "u-1", session.User.ID)
	assert.Equal(t, 1, calls)
}
