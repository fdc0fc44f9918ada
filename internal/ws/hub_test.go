package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient records what the hub sends it.
type fakeClient struct {
	id string

	mu       sync.Mutex
	received [][]byte
	full     bool
	closed   bool
}

func newFakeClient(id string) *fakeClient { return &fakeClient{id: id} }

func (f *fakeClient) ID() string { return f.id }

func (f *fakeClient) Send(p []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full || f.closed {
		return false
	}
	f.received = append(f.received, p)
	return true
}

func (f *fakeClient) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeClient) frames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.received...)
}

func (f *fakeClient) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := NewHub(nil)
	a, b := newFakeClient("a"), newFakeClient("b")

	require.True(t, h.Register(a))
	require.True(t, h.Register(b))
	require.True(t, h.Register(a), "re-registering is idempotent")
	assert.Equal(t, 2, h.Len())

	h.Unregister(a)
	h.Unregister(a)
	assert.Equal(t, 1, h.Len())
}

func TestHub_BroadcastReachesEveryClient(t *testing.T) {
	h := NewHub(nil)
	clients := make([]*fakeClient, 5)
	for i := range clients {
		clients[i] = newFakeClient(fmt.Sprintf("c%d", i))
		h.Register(clients[i])
	}

	n := h.Broadcast(context.Background(), []byte("hello"))
	assert.Equal(t, 5, n)
	for _, c := range clients {
		assert.Equal(t, [][]byte{[]byte("hello")}, c.frames())
	}
}

func TestHub_SkipsFullClients(t *testing.T) {
	h := NewHub(nil)
	ok, slow := newFakeClient("ok"), newFakeClient("slow")
	slow.full = true
	h.Register(ok)
	h.Register(slow)

	assert.Equal(t, 1, h.Broadcast(context.Background(), []byte("x")))
	assert.Len(t, ok.frames(), 1)
	assert.Empty(t, slow.frames())
}

func TestHub_BroadcastPublishesToOtherInstances(t *testing.T) {
	h := NewHub(nil)
	var published [][]byte
	h.PublishToOtherInstances = func(_ context.Context, p []byte) error {
		published = append(published, p)
		return errors.New("ignored")
	}
	h.Register(newFakeClient("a"))

	assert.Equal(t, 1, h.Broadcast(context.Background(), []byte("x")))
	assert.Equal(t, [][]byte{[]byte("x")}, published)

	// Deliver is local only
	assert.Equal(t, 1, h.Deliver([]byte("y")))
	assert.Len(t, published, 1)
}

func TestHub_CloseDisconnectsAndRejects(t *testing.T) {
	h := NewHub(nil)
	a := newFakeClient("a")
	h.Register(a)

	h.Close()
	assert.True(t, a.isClosed())
	assert.Zero(t, h.Len())
	assert.False(t, h.Register(newFakeClient("late")))
	assert.Zero(t, h.Broadcast(context.Background(), []byte("x")))
}

func TestHub_ConcurrentUse(t *testing.T) {
	h := NewHub(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := newFakeClient(fmt.Sprintf("c%d", i))
			h.Register(c)
			h.Broadcast(context.Background(), []byte("ping"))
			h.Unregister(c)
		}(i)
	}
	wg.Wait()
	assert.Zero(t, h.Len())
}
