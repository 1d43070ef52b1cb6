package ws

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcastAfterUnregisterDoesNotPanic(t *testing.T) {
	h := NewHub()
	c := NewClient("org-1", nil)
	h.Register(c)

	require.True(t, h.Broadcast("org-1", []byte("hello")))

	h.Unregister(c)
	assert.False(t, h.Broadcast("org-1", []byte("after close")))
	// 已关闭的客户端直接投递也不能炸
	delivered, dead := c.trySend([]byte("late"))
	assert.False(t, delivered)
	assert.True(t, dead)
}

func TestSlowClientIsEvicted(t *testing.T) {
	h := NewHub()
	c := NewClient("org-1", nil)
	h.Register(c)

	// 没有 WritePump 消费，填满发送缓冲
	for i := 0; i < cap(c.send); i++ {
		require.True(t, h.Broadcast("org-1", []byte("m")))
	}
	assert.False(t, h.Broadcast("org-1", []byte("overflow")))
	// 被摘掉之后组里已无客户端
	assert.False(t, h.Broadcast("org-1", []byte("gone")))
}

func TestConcurrentBroadcastAndUnregister(t *testing.T) {
	h := NewHub()
	clients := make([]*Client, 16)
	for i := range clients {
		clients[i] = NewClient("org-1", nil)
		h.Register(clients[i])
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			h.Broadcast("org-1", []byte("change"))
		}
	}()
	go func() {
		defer wg.Done()
		for _, c := range clients {
			h.Unregister(c)
		}
	}()
	wg.Wait()

	assert.False(t, h.Broadcast("org-1", []byte("empty")))
}
