package ipcchannel

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannel_SendReceiveRoundtrip(t *testing.T) {
	c := New[int]()
	require.NoError(t, c.Send(42))
	v, err := c.Receive()
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestChannel_SendOnNonEmptyPanics(t *testing.T) {
	c := New[int]()
	require.NoError(t, c.Send(1))
	assert.Panics(t, func() {
		_ = c.Send(2)
	})
}

func TestChannel_CloseWriterUnblocksReceiver(t *testing.T) {
	c := New[int]()
	done := make(chan error, 1)
	go func() {
		_, err := c.Receive()
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	c.CloseWriter()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("receiver never unblocked")
	}
}

func TestChannel_SendAfterReaderClosedErrors(t *testing.T) {
	c := New[int]()
	c.CloseReader()
	err := c.Send(1)
	assert.ErrorIs(t, err, ErrReaderClosed)
}

func TestChannel_Rendezvous(t *testing.T) {
	c := New[int]()
	var wg sync.WaitGroup
	wg.Add(2)
	results := make([]int, 0, 100)
	var mu sync.Mutex

	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			require.NoError(t, c.Send(i))
			for {
				if c.State() == "Empty" {
					break
				}
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			v, err := c.Receive()
			require.NoError(t, err)
			mu.Lock()
			results = append(results, v)
			mu.Unlock()
		}
	}()
	wg.Wait()
	require.Len(t, results, 100)
	for i, v := range results {
		assert.Equal(t, i, v)
	}
}

func TestChannel_TryReceiveOnEmpty(t *testing.T) {
	c := New[string]()
	_, ok, err := c.TryReceive()
	assert.False(t, ok)
	assert.NoError(t, err)
}
