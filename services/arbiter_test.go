package services

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArbiterAcquireRelease(t *testing.T) {
	a := NewArbiter()

	_, held := a.CurrentHolder()
	assert.False(t, held)
	assert.Nil(t, a.Info().Holder)

	require.NoError(t, a.TryAcquire("dia"))
	require.NoError(t, a.TryAcquire("dia"), "re-acquire by the holder is a no-op")

	err := a.TryAcquire("qwen")
	var busy *ResourceBusyError
	require.ErrorAs(t, err, &busy)
	assert.Equal(t, "dia", busy.Holder)

	assert.False(t, a.Release("qwen"))
	holder, held := a.CurrentHolder()
	assert.True(t, held)
	assert.Equal(t, "dia", holder)

	info := a.Info()
	require.NotNil(t, info.Holder)
	assert.Equal(t, "dia", *info.Holder)
	assert.NotNil(t, info.Since)

	assert.True(t, a.Release("dia"))
	assert.False(t, a.Release("dia"))
	require.NoError(t, a.TryAcquire("qwen"))
}

func TestArbiterConcurrentAcquire(t *testing.T) {
	a := NewArbiter()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if a.TryAcquire(fmt.Sprintf("svc-%d", i)) == nil {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	_, held := a.CurrentHolder()
	require.True(t, held)
	assert.Equal(t, int32(1), wins.Load())
}
