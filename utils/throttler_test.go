package utils_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NethermindEth/katana-go/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThrottler(t *testing.T) {
	throttler := utils.NewThrottler(2).WithMaxQueueLen(2)
	release := make(chan struct{})

	var runCount atomic.Int64
	job := func() error {
		<-release
		runCount.Add(1)
		return nil
	}

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	start := func(wantRunning, wantQueued int) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- throttler.Do(job)
		}()
		require.Eventually(t, func() bool {
			return throttler.JobsRunning() == wantRunning && throttler.QueueLen() == wantQueued
		}, time.Second, time.Millisecond)
	}

	start(1, 0)
	start(2, 0)
	start(2, 1)
	start(2, 2)

	require.ErrorIs(t, throttler.Do(job), utils.ErrResourceBusy)

	for range 4 {
		release <- struct{}{}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int64(4), runCount.Load())
	assert.Equal(t, 0, throttler.QueueLen())
	assert.Equal(t, 0, throttler.JobsRunning())
}

func TestThrottlerReturnsJobError(t *testing.T) {
	throttler := utils.NewThrottler(1)
	jobErr := assert.AnError
	require.ErrorIs(t, throttler.Do(func() error { return jobErr }), jobErr)
	assert.Equal(t, 0, throttler.JobsRunning())
}
