package collector

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockedby/relaybot/internal/models"
)

func TestFlow_CollectsUntilComplete(t *testing.T) {
	dedup := &countingDeduper{}
	fin := &captureFinalizer{}
	f := NewFlow(scanner, testPayload(), dedup, fin, FlowConfig{})
	assert.Equal(t, StateAwaitingConfig, f.State())

	wait := runFlow(t, context.Background(), f)
	require.True(t, f.Deliver(mediaMsg(models.FilePhoto, 1)))
	require.True(t, f.Deliver(textMsg("caption only")))
	require.True(t, f.Deliver(mediaMsg(models.FileVideo, 2)))
	require.True(t, f.Deliver(completeMsg()))
	require.NoError(t, wait())

	assert.Equal(t, StateDone, f.State())
	assert.False(t, f.Deliver(mediaMsg(models.FilePhoto, 3)), "a finished flow takes nothing")

	runs := fin.Runs()
	require.Len(t, runs, 1)
	require.Len(t, runs[0].items, 2)
	assert.Equal(t, "photo:1", runs[0].items[0].UniqueFileID)
	assert.Equal(t, models.FileVideo, runs[0].items[1].Kind)
	assert.Equal(t, Summary{Received: 2}, runs[0].sum)
	assert.Equal(t, 1, dedup.Calls(), "one final check")
}

func TestFlow_BatchedDeduplication(t *testing.T) {
	stored := map[string]bool{}
	for id := int64(1); id <= 20; id++ {
		stored["photo:"+strconv.FormatInt(id*7, 10)] = true
	}
	dedup := &countingDeduper{stored: stored}
	fin := &captureFinalizer{}
	f := NewFlow(scanner, testPayload(), dedup, fin, FlowConfig{Inbox: 200})

	wait := runFlow(t, context.Background(), f)
	for id := int64(1); id <= 150; id++ {
		require.True(t, f.Deliver(mediaMsg(models.FilePhoto, id)))
	}
	require.True(t, f.Deliver(completeMsg()))
	require.NoError(t, wait())

	runs := fin.Runs()
	require.Len(t, runs, 1)
	assert.Len(t, runs[0].items, 130)
	assert.Equal(t, 150, runs[0].sum.Received)
	assert.Equal(t, 20, runs[0].sum.Duplicates)
	assert.Equal(t, 2, dedup.Calls())
	assert.Equal(t, []int{100, 50}, dedup.sizes)
}

func TestFlow_RepeatInsideFlowIsDuplicate(t *testing.T) {
	fin := &captureFinalizer{}
	f := NewFlow(scanner, testPayload(), &countingDeduper{}, fin, FlowConfig{})

	wait := runFlow(t, context.Background(), f)
	f.Deliver(mediaMsg(models.FilePhoto, 5))
	f.Deliver(mediaMsg(models.FilePhoto, 5))
	f.Deliver(completeMsg())
	require.NoError(t, wait())

	runs := fin.Runs()
	require.Len(t, runs, 1)
	assert.Len(t, runs[0].items, 1)
	assert.Equal(t, 1, runs[0].sum.Duplicates)
}

func TestFlow_DedupErrorKeepsItems(t *testing.T) {
	fin := &captureFinalizer{}
	f := NewFlow(scanner, testPayload(), &countingDeduper{err: errors.New("db locked")}, fin, FlowConfig{})

	wait := runFlow(t, context.Background(), f)
	f.Deliver(mediaMsg(models.FilePhoto, 1))
	f.Deliver(completeMsg())
	require.NoError(t, wait())

	require.Len(t, fin.Runs(), 1)
	assert.Len(t, fin.Runs()[0].items, 1)
}

func TestFlow_TimeoutFinalizesPartial(t *testing.T) {
	fin := &captureFinalizer{}
	f := NewFlow(scanner, testPayload(), &countingDeduper{}, fin, FlowConfig{Timeout: 50 * time.Millisecond})

	wait := runFlow(t, context.Background(), f)
	f.Deliver(mediaMsg(models.FilePhoto, 1))
	require.NoError(t, wait())

	runs := fin.Runs()
	require.Len(t, runs, 1)
	assert.True(t, runs[0].sum.TimedOut)
	assert.Len(t, runs[0].items, 1)
}

func TestFlow_CancelFinalizesPartial(t *testing.T) {
	fin := &captureFinalizer{}
	f := NewFlow(scanner, testPayload(), &countingDeduper{}, fin, FlowConfig{})
	ctx, cancel := context.WithCancel(context.Background())

	wait := runFlow(t, ctx, f)
	f.Deliver(mediaMsg(models.FileVideo, 4))
	require.Eventually(t, func() bool { return f.State() == StateCollecting }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, wait())

	require.Len(t, fin.Runs(), 1)
	assert.True(t, fin.Runs()[0].sum.TimedOut)
}

func TestFlow_StartInsideFlowIgnored(t *testing.T) {
	fin := &captureFinalizer{}
	f := NewFlow(scanner, testPayload(), &countingDeduper{}, fin, FlowConfig{})

	wait := runFlow(t, context.Background(), f)
	other := testPayload()
	other.Title = "Other"
	f.Deliver(startMsg(t, other))
	f.Deliver(mediaMsg(models.FilePhoto, 1))
	f.Deliver(completeMsg())
	require.NoError(t, wait())

	require.Len(t, fin.Runs(), 1)
	assert.Equal(t, "Spring", fin.Runs()[0].payload.Title)
}

func TestFlow_NoPayload(t *testing.T) {
	f := NewFlow(scanner, nil, &countingDeduper{}, &captureFinalizer{}, FlowConfig{})
	assert.ErrorIs(t, f.Run(context.Background()), ErrNoConfig)
	assert.Equal(t, StateDone, f.State())
}

func TestFlow_FinalizerErrorReturned(t *testing.T) {
	fin := &captureFinalizer{err: errors.New("disk full")}
	f := NewFlow(scanner, testPayload(), &countingDeduper{}, fin, FlowConfig{})

	wait := runFlow(t, context.Background(), f)
	f.Deliver(completeMsg())
	assert.EqualError(t, wait(), "disk full")
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "collecting", StateCollecting.String())
	assert.Equal(t, "timed_out", StateTimedOut.String())
	assert.Equal(t, "unknown", State(42).String())
}
