package bus

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBusWildcardDelivery(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	var mu sync.Mutex
	var all, users []string

	_, err := b.Subscribe("*.*", func(_ context.Context, e Event) {
		mu.Lock()
		all = append(all, e.Type)
		mu.Unlock()
	})
	require.NoError(t, err)

	_, err = b.Subscribe("user.*", func(_ context.Context, e Event) {
		mu.Lock()
		users = append(users, e.Type)
		mu.Unlock()
	})
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), NewEvent("user.registered", "test", nil)))
	require.NoError(t, b.Publish(context.Background(), NewEvent("payment.completed", "test", nil)))
	b.Flush()

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"user.registered", "payment.completed"}, all)
	assert.Equal(t, []string{"user.registered"}, users)
}

func TestMemoryBusUnsubscribe(t *testing.T) {
	b := NewMemoryBus()
	defer b.Close()

	var mu sync.Mutex
	count := 0
	sub, err := b.Subscribe("user.*", func(_ context.Context, e Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), NewEvent("user.registered", "test", nil)))
	b.Flush()
	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, b.Publish(context.Background(), NewEvent("user.registered", "test", nil)))
	b.Flush()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}
