package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func mustCreate(t *testing.T, st *Store, callID, callerID string) {
	t.Helper()
	_, err := st.CreateCall(context.Background(), callID, callerID)
	require.NoError(t, err)
}

func mustAppend(t *testing.T, st *Store, turn Turn) {
	t.Helper()
	_, err := st.AppendTurn(context.Background(), turn)
	require.NoError(t, err)
}

func TestCreateCallIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	created, err := st.CreateCall(ctx, "CA1", "+15551234567")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = st.CreateCall(ctx, "CA1", "+15551234567")
	require.NoError(t, err)
	assert.False(t, created)

	call, err := st.GetCall(ctx, "CA1")
	require.NoError(t, err)
	require.NotNil(t, call)
	assert.Equal(t, "+15551234567", call.CallerID)
	assert.Nil(t, call.FinalDecision)
	assert.Nil(t, call.EndTime)
	assert.False(t, call.StartTime.IsZero())
}

func TestGetCallUnknown(t *testing.T) {
	st := newTestStore(t)

	call, err := st.GetCall(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, call)
}

func TestAppendTurnIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	mustCreate(t, st, "CA1", "+15551234567")

	mustAppend(t, st, Turn{CallID: "CA1", TurnIndex: 0, Speaker: SpeakerAssistant, Text: "Hello"})
	inserted, err := st.AppendTurn(ctx, Turn{CallID: "CA1", TurnIndex: 1, Speaker: SpeakerCaller, Text: "Hi"})
	require.NoError(t, err)
	assert.True(t, inserted)

	// Retried webhook delivery re-derives the same index; the duplicate must
	// not create a second row or a gap, and must be reported as collapsed.
	inserted, err = st.AppendTurn(ctx, Turn{CallID: "CA1", TurnIndex: 1, Speaker: SpeakerCaller, Text: "Hi"})
	require.NoError(t, err)
	assert.False(t, inserted)

	turns, err := st.Turns(ctx, "CA1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	for i, turn := range turns {
		assert.Equal(t, i, turn.TurnIndex)
	}
	assert.Equal(t, "Hello", turns[0].Text)
	assert.Equal(t, "Hi", turns[1].Text)
}

func TestAppendTurnLatency(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	mustCreate(t, st, "CA1", "+15551234567")

	latency := int64(640)
	mustAppend(t, st, Turn{CallID: "CA1", TurnIndex: 0, Speaker: SpeakerAssistant, Text: "Hi", LatencyMs: &latency})

	turns, err := st.Turns(ctx, "CA1")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	require.NotNil(t, turns[0].LatencyMs)
	assert.Equal(t, int64(640), *turns[0].LatencyMs)
}

func TestFinishCallExactlyOnce(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	mustCreate(t, st, "CA1", "+15551234567")

	finished, err := st.FinishCall(ctx, "CA1", DecisionCompleted)
	require.NoError(t, err)
	assert.True(t, finished)

	// A second finish must not overwrite the decision or end time.
	finished, err = st.FinishCall(ctx, "CA1", DecisionTransferred)
	require.NoError(t, err)
	assert.False(t, finished)

	call, err := st.GetCall(ctx, "CA1")
	require.NoError(t, err)
	require.NotNil(t, call.FinalDecision)
	assert.Equal(t, DecisionCompleted, *call.FinalDecision)
	require.NotNil(t, call.EndTime)
	assert.False(t, call.EndTime.Before(call.StartTime))
}

func TestRecentCallsNewestFirstWithTurns(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	mustCreate(t, st, "CA-old", "+15550000001")
	mustAppend(t, st, Turn{CallID: "CA-old", TurnIndex: 0, Speaker: SpeakerAssistant, Text: "Hello"})
	mustCreate(t, st, "CA-new", "+15550000002")
	mustAppend(t, st, Turn{CallID: "CA-new", TurnIndex: 0, Speaker: SpeakerAssistant, Text: "Hello"})
	mustAppend(t, st, Turn{CallID: "CA-new", TurnIndex: 1, Speaker: SpeakerCaller, Text: "Hi there"})

	convs, err := st.RecentCalls(ctx, 10)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, "CA-new", convs[0].CallID)
	assert.Len(t, convs[0].Turns, 2)
	assert.Equal(t, "CA-old", convs[1].CallID)
	assert.Len(t, convs[1].Turns, 1)

	convs, err = st.RecentCalls(ctx, 1)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "CA-new", convs[0].CallID)
}

func TestExceptionUpsertReactivates(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.UpsertException(ctx, "+15551234567", "Mom", "family")
	require.NoError(t, err)
	require.NoError(t, st.DeactivateException(ctx, "+15551234567"))

	contact, err := st.GetException(ctx, "+15551234567")
	require.NoError(t, err)
	require.NotNil(t, contact)
	assert.False(t, contact.Active)

	// Re-adding must reactivate the existing row, not insert a second one.
	contact, err = st.UpsertException(ctx, "+15551234567", "Mother", "family")
	require.NoError(t, err)
	assert.True(t, contact.Active)
	assert.Equal(t, "Mother", contact.ContactName)

	active, err := st.ActiveExceptions(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
}

func TestDeactivateUnknownNotAnError(t *testing.T) {
	st := newTestStore(t)
	assert.NoError(t, st.DeactivateException(context.Background(), "+15550009999"))
}

func TestActiveExceptionsOrderedByName(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.UpsertException(ctx, "+15550000001", "Zoe", "friends")
	require.NoError(t, err)
	_, err = st.UpsertException(ctx, "+15550000002", "Alice", "work")
	require.NoError(t, err)

	active, err := st.ActiveExceptions(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "Alice", active[0].ContactName)
	assert.Equal(t, "Zoe", active[1].ContactName)
}

func TestTimeFormatSortsChronologically(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	earlier := base.Add(100 * time.Millisecond) // .1s, a variable-width victim
	later := base.Add(150 * time.Millisecond)   // .15s

	a := earlier.Format(timeFormat)
	b := later.Format(timeFormat)
	assert.Less(t, a, b, "text order must match time order within a second")

	// Stored values round-trip, including rows written before the fixed-width
	// layout.
	assert.True(t, parseTime(a).Equal(earlier))
	assert.True(t, parseTime(earlier.Format(time.RFC3339Nano)).Equal(earlier))
}

func TestConcurrentUseOfMemoryStore(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	mustCreate(t, st, "CA1", "+15551234567")

	// A second pooled connection to :memory: would be an unmigrated database;
	// concurrent access must keep seeing the tables.
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := st.AppendTurn(ctx, Turn{CallID: "CA1", TurnIndex: i, Speaker: SpeakerAssistant, Text: "x"}); err != nil {
				errs <- err
			}
			if _, err := st.GetCall(ctx, "CA1"); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent store access: %v", err)
	}

	turns, err := st.Turns(ctx, "CA1")
	require.NoError(t, err)
	assert.Len(t, turns, 8)
}
