package adbvol_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gen2brain/adbvol"
)

func TestLatestNewestWins(t *testing.T) {
	l := adbvol.NewLatest[int]()

	_, ok := l.Take()
	assert.False(t, ok, "empty cell should have nothing to take")

	for i := 1; i <= 100; i++ {
		l.Put(i)
	}

	select {
	case <-l.Ready():
	default:
		t.Fatal("Ready should be signalled after Put")
	}

	v, ok := l.Take()
	require.True(t, ok)
	assert.Equal(t, 100, v)

	_, ok = l.Take()
	assert.False(t, ok, "a value is taken only once")
}

func TestLatestRestoreKeepsNewer(t *testing.T) {
	l := adbvol.NewLatest[string]()

	l.Put("old")
	v, _ := l.Take()
	l.Put("new")
	l.Restore(v)

	got, ok := l.Take()
	require.True(t, ok)
	assert.Equal(t, "new", got)

	l.Restore("old")
	got, ok = l.Take()
	require.True(t, ok)
	assert.Equal(t, "old", got)
}

func TestLatestPutNeverBlocks(t *testing.T) {
	l := adbvol.NewLatest[int]()

	done := make(chan struct{})
	go func() {
		defer close(done)

		var wg sync.WaitGroup
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < 1000; i++ {
					l.Put(w*1000 + i)
				}
			}(w)
		}
		wg.Wait()
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Put blocked without a consumer")
	}

	select {
	case <-l.Ready():
	default:
		t.Fatal("Ready should be signalled after Put")
	}

	_, ok := l.Take()
	assert.True(t, ok)
}

func TestClassify(t *testing.T) {
	testCases := []struct {
		err  error
		want adbvol.ErrorClass
	}{
		{nil, adbvol.ClassNone},
		{fmt.Errorf("wrapped: %w", adbvol.ErrDeviceDisconnected), adbvol.ClassDisconnected},
		{fmt.Errorf("timeout: %w: %w", adbvol.ErrDeviceDisconnected, context.DeadlineExceeded), adbvol.ClassDisconnected},
		{adbvol.ErrAmbiguousDevice, adbvol.ClassAmbiguous},
		{adbvol.ErrNoDevice, adbvol.ClassTransient},
		{adbvol.ErrTransportUnavailable, adbvol.ClassTransient},
		{adbvol.ErrCommandFailed, adbvol.ClassTransient},
		{adbvol.ErrRegistrationFailed, adbvol.ClassHostRegistration},
		{adbvol.ErrSessionInvalidated, adbvol.ClassHostRegistration},
		{adbvol.ErrRangeMap, adbvol.ClassRangeMap},
		{context.Canceled, adbvol.ClassFatal},
		{errors.New("boom"), adbvol.ClassFatal},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.want, adbvol.Classify(tc.err), "Classify(%v)", tc.err)
	}

	assert.Equal(t, "disconnected", adbvol.ClassDisconnected.String())
}

func TestDeviceAudibleLevel(t *testing.T) {
	var nilDev *adbvol.Device
	assert.NotPanics(t, func() { nilDev.RememberLevel(3) })
	assert.Equal(t, 1, nilDev.AudibleLevel())

	dev := &adbvol.Device{Serial: "emulator-5554", Max: 15}
	assert.Equal(t, 5, dev.AudibleLevel(), "without history a third of max is restored")

	dev.RememberLevel(11)
	dev.RememberLevel(0)
	assert.Equal(t, 11, dev.AudibleLevel(), "zero is never remembered")

	small := &adbvol.Device{Max: 2}
	assert.Equal(t, 1, small.AudibleLevel())
}
