package websocket

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockClient is a test double for Client that captures sent messages
type mockClient struct {
	id       string
	channel  string
	messages [][]byte
	mu       sync.Mutex
	closed   bool
}

func newMockClient(id, channel string) *mockClient {
	return &mockClient{
		id:       id,
		channel:  channel,
		messages: make([][]byte, 0),
	}
}

func (m *mockClient) ID() string {
	return m.id
}

func (m *mockClient) Channel() string {
	return m.channel
}

func (m *mockClient) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClientClosed
	}
	m.messages = append(m.messages, data)
	return nil
}

func (m *mockClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockClient) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockClient) GetMessages() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := make([][]byte, len(m.messages))
	copy(copied, m.messages)
	return copied
}

func (m *mockClient) messageCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := NewHub()

	client1 := newMockClient("client-1", ChannelPrompts)
	client2 := newMockClient("client-2", ChannelPrompts)
	client3 := newMockClient("client-3", "admin")

	hub.Register(client1)
	hub.Register(client2)
	hub.Register(client3)
	// re-registering is idempotent
	hub.Register(client1)

	assert.Equal(t, 2, hub.ClientCount(ChannelPrompts))
	assert.Equal(t, 1, hub.ClientCount("admin"))
	assert.Equal(t, 0, hub.ClientCount("missing"))
	assert.Equal(t, 3, hub.TotalClientCount())

	hub.Unregister(client1)
	assert.Equal(t, 1, hub.ClientCount(ChannelPrompts))

	hub.Unregister(client2)
	hub.Unregister(client3)
	assert.Equal(t, 0, hub.TotalClientCount())
}

func TestHub_Broadcast_ChannelIsolation(t *testing.T) {
	hub := NewHub()

	viewerA := newMockClient("viewer-a", ChannelPrompts)
	viewerB := newMockClient("viewer-b", ChannelPrompts)
	other := newMockClient("other", "admin")

	hub.Register(viewerA)
	hub.Register(viewerB)
	hub.Register(other)

	hub.Broadcast(ChannelPrompts, PromptCreated(uuid.New()))

	require.Eventually(t, func() bool {
		return viewerA.messageCount() == 1 && viewerB.messageCount() == 1
	}, time.Second, 5*time.Millisecond)

	// give a stray send a chance to land before asserting absence
	time.Sleep(10 * time.Millisecond)
	assert.Len(t, other.GetMessages(), 0, "other channel should not receive prompt events")
}

func TestHub_Broadcast_MultipleFanOut(t *testing.T) {
	hub := NewHub()

	clients := make([]*mockClient, 5)
	for i := range clients {
		clients[i] = newMockClient(fmt.Sprintf("client-%d", i), ChannelPrompts)
		hub.Register(clients[i])
	}

	hub.Broadcast(ChannelPrompts, PromptUpdated(uuid.New()))

	for i, c := range clients {
		c := c
		assert.Eventually(t, func() bool { return c.messageCount() == 1 }, time.Second, 5*time.Millisecond,
			"client %d should receive message", i)
	}
}

func TestHub_ConcurrentAccess(t *testing.T) {
	hub := NewHub()

	var wg sync.WaitGroup
	clientCount := 50
	channels := []string{ChannelPrompts, "a", "b", "c", "d"}

	clients := make([]*mockClient, clientCount)
	for i := 0; i < clientCount; i++ {
		clients[i] = newMockClient(fmt.Sprintf("client-%d", i), channels[i%len(channels)])
	}

	for i := 0; i < clientCount; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			hub.Register(clients[idx])
		}(i)
	}
	wg.Wait()

	assert.Equal(t, clientCount, hub.TotalClientCount())

	for i := 0; i < clientCount; i++ {
		wg.Add(2)
		go func(idx int) {
			defer wg.Done()
			hub.Broadcast(channels[idx%len(channels)], PromptCreated(uuid.New()))
		}(i)
		go func(idx int) {
			defer wg.Done()
			hub.Unregister(clients[idx])
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, hub.TotalClientCount())
}

func TestHub_CloseAll(t *testing.T) {
	hub := NewHub()
	a := newMockClient("a", ChannelPrompts)
	b := newMockClient("b", "admin")
	hub.Register(a)
	hub.Register(b)

	hub.CloseAll()

	assert.True(t, a.IsClosed())
	assert.True(t, b.IsClosed())
	assert.Equal(t, 0, hub.TotalClientCount())
}

func TestHub_UnregisterNonexistent(t *testing.T) {
	hub := NewHub()

	require.NotPanics(t, func() {
		hub.Unregister(newMockClient("client-1", ChannelPrompts))
	})
}

func TestHub_BroadcastToEmptyChannel(t *testing.T) {
	hub := NewHub()

	require.NotPanics(t, func() {
		hub.Broadcast("nobody", PromptDeleted(uuid.New()))
	})
}
