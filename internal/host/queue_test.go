package host

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rehook/internal/ir"
)

func TestEventQueue_FIFO(t *testing.T) {
	q := newEventQueue()
	for _, id := range []string{"a", "b", "c"} {
		require.True(t, q.Enqueue(delivery{instance: id, event: ir.TimerFire("x/interval#0")}))
	}
	assert.Equal(t, 3, q.Len())

	got := q.DrainAll()
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].instance)
	assert.Equal(t, "c", got[2].instance)
	assert.Equal(t, 0, q.Len())
	assert.Nil(t, q.DrainAll())
}

func TestEventQueue_SignalsCoalesce(t *testing.T) {
	q := newEventQueue()
	q.Enqueue(delivery{instance: "a"})
	q.Enqueue(delivery{instance: "b"})

	select {
	case <-q.Wait():
	default:
		t.Fatal("expected a pending signal")
	}
	select {
	case <-q.Wait():
		t.Fatal("signals should coalesce into one")
	default:
	}
}

func TestEventQueue_Close(t *testing.T) {
	q := newEventQueue()
	q.Close()
	q.Close() // idempotent

	assert.False(t, q.Enqueue(delivery{instance: "a"}))
	_, open := <-q.Wait()
	assert.False(t, open, "Close wakes waiters")
}

func TestEventQueue_ThreadSafe(t *testing.T) {
	q := newEventQueue()
	const producers, each = 10, 100

	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < each; j++ {
				q.Enqueue(delivery{instance: "a"})
			}
		}()
	}
	wg.Wait()
	assert.Len(t, q.DrainAll(), producers*each)
}
