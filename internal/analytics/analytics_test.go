package analytics

import (
	"context"
	"errors"
	"testing"

	"github.com/posthog/posthog-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	msgs   []posthog.Message
	err    error
	closed int
}

func (f *fakeClient) Enqueue(m posthog.Message) error {
	f.msgs = append(f.msgs, m)
	return f.err
}

func (f *fakeClient) Close() error {
	f.closed++
	return nil
}

func TestSessionID(t *testing.T) {
	assert.Equal(t, "hourglass-t-42", SessionID("t-42"))
}

func TestNew_NoKeyIsNop(t *testing.T) {
	s, err := New("", "")
	require.NoError(t, err)
	assert.IsType(t, NopSink{}, s)
	s.Capture(context.Background(), Event{Name: EventTurnPrompted})
	assert.NoError(t, s.Close())
}

func TestPostHogSink_Capture(t *testing.T) {
	fc := &fakeClient{}
	s := &PostHogSink{client: fc}

	s.Capture(context.Background(), Event{
		Name:       EventTimeoutAutofill,
		TurnID:     "t1",
		Properties: map[string]any{"ai_model": "heuristic", "elapsed_ms": int64(1200)},
	})

	require.Len(t, fc.msgs, 1)
	c, ok := fc.msgs[0].(posthog.Capture)
	require.True(t, ok)
	assert.Equal(t, "hourglass-t1", c.DistinctId)
	assert.Equal(t, EventTimeoutAutofill, c.Event)
	assert.Equal(t, "hourglass-t1", c.Properties["session_id"])
	assert.Equal(t, "heuristic", c.Properties["ai_model"])
	assert.Equal(t, int64(1200), c.Properties["elapsed_ms"])
}

func TestPostHogSink_EnqueueErrorSwallowed(t *testing.T) {
	fc := &fakeClient{err: errors.New("queue full")}
	s := &PostHogSink{client: fc}
	assert.NotPanics(t, func() {
		s.Capture(context.Background(), Event{Name: EventTurnWarning, TurnID: "t2"})
	})
}

func TestPostHogSink_CloseOnce(t *testing.T) {
	fc := &fakeClient{}
	s := &PostHogSink{client: fc}
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, fc.closed)
}

func TestNewPostHogSink(t *testing.T) {
	s, err := NewPostHogSink("phc_test", "http://127.0.0.1:1")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.NoError(t, s.Close())
}
