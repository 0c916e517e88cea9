package server

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSession() *Session {
	return newSession(&memConn{}, "test", 0, 0)
}

func TestRegistryTryRegister(t *testing.T) {
	r := NewRegistry(DefaultServerName)
	alice := testSession()

	require.True(t, r.TryRegister(alice, "Alice"))
	name, ok := r.LookupUsername(alice)
	require.True(t, ok)
	assert.Equal(t, "Alice", name)

	assert.False(t, r.TryRegister(testSession(), "alice"), "case-insensitive collision")
	assert.False(t, r.TryRegister(testSession(), "__SERVER__"), "reserved name")
	assert.False(t, r.TryRegister(testSession(), ""), "empty name")
	assert.False(t, r.TryRegister(alice, "other"), "session already registered")
	assert.False(t, r.TryRegister(nil, "nobody"))
	assert.Equal(t, 1, r.Len())
}

func TestRegistryUnregisterFreesName(t *testing.T) {
	r := NewRegistry(DefaultServerName)
	first := testSession()
	require.True(t, r.TryRegister(first, "bob"))

	assert.True(t, r.Unregister(first))
	assert.False(t, r.Unregister(first))

	_, ok := r.LookupUsername(first)
	assert.False(t, ok)
	assert.True(t, r.TryRegister(testSession(), "BOB"))
}

func TestRegistryBroadcastTargets(t *testing.T) {
	r := NewRegistry(DefaultServerName)
	a, b, c := testSession(), testSession(), testSession()
	require.True(t, r.TryRegister(a, "a"))
	require.True(t, r.TryRegister(b, "b"))
	require.True(t, r.TryRegister(c, "c"))

	assert.ElementsMatch(t, []*Session{b, c}, r.BroadcastTargets(a))
	assert.ElementsMatch(t, []*Session{a, b, c}, r.BroadcastTargets(nil))

	// the snapshot does not change when the registry does
	snapshot := r.BroadcastTargets(nil)
	r.Unregister(b)
	assert.Len(t, snapshot, 3)
	assert.ElementsMatch(t, []*Session{a, c}, r.BroadcastTargets(nil))
}

func TestRegistryConcurrentSameName(t *testing.T) {
	r := NewRegistry(DefaultServerName)

	const contenders = 64
	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < contenders; i++ {
		sess := testSession()
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if r.TryRegister(sess, "Highlander") {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, 1, r.Len())
}

func TestRegistryCustomReservedName(t *testing.T) {
	r := NewRegistry("Hub")
	assert.False(t, r.TryRegister(testSession(), "hub"))
	assert.True(t, r.TryRegister(testSession(), DefaultServerName))
}
