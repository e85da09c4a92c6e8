package store

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rapidtrace/internal/event"
	"github.com/roach88/rapidtrace/internal/rapidbin"
	"github.com/roach88/rapidtrace/internal/testutil"
)

func TestSaveRun_ArchivesTrace(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	data := testutil.Encode(t, testutil.LockedWrite())

	run, created, err := s.SaveRun(ctx, "locked-write", data)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "test-run-0001", run.ID)
	assert.Equal(t, "locked-write", run.Name)
	assert.Equal(t, int64(1), run.Seq)
	assert.Equal(t, ContentHash(data), run.ContentHash)
	assert.Equal(t, rapidbin.Header{Threads: 2, Locks: 1, Regions: 1, Events: 10}, run.Header)

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run, got)

	stored, err := s.LoadTrace(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, data, stored)
}

func TestSaveRun_IdempotentOnContent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	data := testutil.Encode(t, testutil.LockedWrite())

	first, created, err := s.SaveRun(ctx, "a", data)
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := s.SaveRun(ctx, "b", data)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first, second, "existing run is returned unchanged")

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestSaveRun_RejectsCorruptTrace(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	data := testutil.Encode(t, testutil.LockedWrite())

	_, _, err := s.SaveRun(ctx, "short", data[:len(data)-3])
	require.Error(t, err)
	assert.True(t, rapidbin.IsTruncated(err))

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestListRuns_OrderedBySeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	names := []string{"one", "two", "three"}
	for i, name := range names {
		data := testutil.Encode(t, []event.Event{event.Write(0, uint64(i), 1, event.Location{})})
		_, _, err := s.SaveRun(ctx, name, data)
		require.NoError(t, err)
	}

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	for i, run := range runs {
		assert.Equal(t, names[i], run.Name)
		assert.Equal(t, int64(i+1), run.Seq)
	}
}

func TestListRuns_EmptyNotNil(t *testing.T) {
	runs, err := createTestStore(t).ListRuns(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)
}

func TestGetRun_NotFound(t *testing.T) {
	_, err := createTestStore(t).GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = createTestStore(t).LoadTrace(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestReadEvents_MatchesDecoder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	data := testutil.Encode(t, testutil.LockedWrite())
	run, _, err := s.SaveRun(ctx, "locked-write", data)
	require.NoError(t, err)

	tr, err := rapidbin.Decode(data)
	require.NoError(t, err)

	got, err := s.ReadEvents(ctx, run.ID, EventFilter{})
	require.NoError(t, err)
	if diff := cmp.Diff(tr.Records, got); diff != "" {
		t.Errorf("archived events mismatch (-want +got):\n%s", diff)
	}
}

func TestReadEvents_Filters(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	run, _, err := s.SaveRun(ctx, "locked-write", testutil.Encode(t, testutil.LockedWrite()))
	require.NoError(t, err)

	child := uint16(1)
	byThread, err := s.ReadEvents(ctx, run.ID, EventFilter{Thread: &child})
	require.NoError(t, err)
	assert.Len(t, byThread, 4)
	for _, r := range byThread {
		assert.Equal(t, child, r.Thread)
	}

	acq := event.OpAcquire
	byOp, err := s.ReadEvents(ctx, run.ID, EventFilter{Op: &acq})
	require.NoError(t, err)
	want := []string{"T1|acq(L0)|2", "T0|acq(L0)|7"}
	var lines []string
	for _, r := range byOp {
		lines = append(lines, r.String())
	}
	assert.Equal(t, want, lines)

	both, err := s.ReadEvents(ctx, run.ID, EventFilter{Thread: &child, Op: &acq})
	require.NoError(t, err)
	assert.Len(t, both, 1)

	fork := event.OpFork
	none, err := s.ReadEvents(ctx, run.ID, EventFilter{Thread: &child, Op: &fork})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestReadEvents_UnknownRun(t *testing.T) {
	_, err := createTestStore(t).ReadEvents(context.Background(), "nope", EventFilter{})
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestSaveRun_LargeDecoration(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	// Many distinct regions push decorations past 16 bits.
	events := make([]event.Event, 0, 70000)
	for i := 0; i < cap(events); i++ {
		events = append(events, event.Read(0, uint64(i), 1, event.Location{}))
	}
	run, _, err := s.SaveRun(ctx, "wide", testutil.Encode(t, events))
	require.NoError(t, err)

	read := event.OpRead
	got, err := s.ReadEvents(ctx, run.ID, EventFilter{Op: &read})
	require.NoError(t, err)
	require.Len(t, got, len(events))
	assert.Equal(t, uint64(69999), got[len(got)-1].Decoration)
}
