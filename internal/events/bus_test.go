package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBus_HandlersRunInRegistrationOrder(t *testing.T) {
	b := NewBus()
	var order []int
	b.On(Loop, func(any) { order = append(order, 1) })
	b.On(Loop, func(any) { order = append(order, 2) })
	b.On(Loop, func(any) { order = append(order, 3) })

	b.Emit(Loop, LoopPayload{})
	require.Equal(t, []int{1, 2, 3}, order)
}

func TestBus_OffRemovesOnlyThatSubscription(t *testing.T) {
	b := NewBus()
	var calls int
	id1 := b.On(Abort, func(any) { calls++ })
	id2 := b.On(Abort, func(any) { calls++ })

	b.Off(Abort, id1)
	b.Emit(Abort, AbortPayload{})
	require.Equal(t, 1, calls)

	b.Off(Abort, id2)
	b.Emit(Abort, AbortPayload{})
	require.Equal(t, 1, calls)
}

func TestBus_EmitIsolatesKinds(t *testing.T) {
	b := NewBus()
	var loopCalls, processCalls int
	b.On(Loop, func(any) { loopCalls++ })
	b.On(Process, func(any) { processCalls++ })

	b.Emit(Loop, LoopPayload{})
	require.Equal(t, 1, loopCalls)
	require.Equal(t, 0, processCalls)
}

func TestBus_ProcessPayloadCarriesAdmittedKeys(t *testing.T) {
	b := NewBus()
	var got ProcessPayload
	b.On(Process, func(payload any) { got = payload.(ProcessPayload) })

	b.Emit(Process, ProcessPayload{Keys: []string{"a", "b"}, InProgress: 2})
	require.Equal(t, []string{"a", "b"}, got.Keys)
	require.Equal(t, 2, got.InProgress)
}
