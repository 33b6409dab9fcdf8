package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/pkg/dto"
)

func TestHub_BroadcastRespectsZoneFilter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewHub()
	go h.Run(ctx)

	all := &Client{send: make(chan []byte, 4)}
	dock := &Client{send: make(chan []byte, 4), zone: "dock"}
	h.register <- all
	h.register <- dock
	require.Eventually(t, func() bool { return h.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	d := models.AccessDecision{ID: uuid.New(), Zone: "lobby", Decision: models.DecisionGranted, Timestamp: time.Now()}
	require.NoError(t, h.PublishDecision(ctx, d))

	select {
	case msg := <-all.send:
		var got dto.WSDecision
		require.NoError(t, json.Unmarshal(msg, &got))
		assert.Equal(t, "access_decision", got.Type)
		assert.Equal(t, d.ID, got.Data.ID)
		assert.Equal(t, "granted", got.Data.Decision)
	case <-time.After(time.Second):
		t.Fatal("unfiltered client got nothing")
	}

	select {
	case <-dock.send:
		t.Fatal("zone-filtered client received another zone's decision")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewHub()
	go h.Run(ctx)

	c := &Client{send: make(chan []byte, 1)}
	h.register <- c
	h.unregister <- c

	select {
	case _, ok := <-c.send:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("send channel not closed")
	}
	assert.Zero(t, h.ClientCount())
}

func TestHub_JoinAndLeaveReturnAfterStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	h := NewHub()
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	c := &Client{send: make(chan []byte, 1)}
	require.True(t, h.join(c))
	cancel()
	<-stopped

	_, ok := <-c.send
	assert.False(t, ok, "stop closes client send channels")

	returned := make(chan struct{})
	go func() {
		h.leave(c)
		assert.False(t, h.join(&Client{send: make(chan []byte, 1)}))
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("join/leave blocked after the hub stopped")
	}
}
