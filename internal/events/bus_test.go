package events

import (
	"testing"

	"github.com/eniac111/ftl2/internal/types"
	"github.com/stretchr/testify/require"
)

func TestForCallStampsRequestIDAndHost(t *testing.T) {
	var got []types.Event
	b := New(func(ev types.Event) { got = append(got, ev) })

	sink := b.ForCall("req-1", "web01")
	sink(types.Event{Kind: types.EventProgress})
	sink(types.Event{Kind: types.EventLog})

	require.Len(t, got, 2)
	require.Equal(t, "req-1", got[0].RequestID)
	require.Equal(t, "web01", got[0].Host)
	// Arrival order preserved within a call.
	require.Equal(t, types.EventProgress, got[0].Kind)
	require.Equal(t, types.EventLog, got[1].Kind)
}

func TestNilCallbackDiscardsSafely(t *testing.T) {
	b := New(nil)
	require.NotPanics(t, func() {
		b.Publish(types.Event{Kind: types.EventLog})
	})
}
