package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/colmap/internal/domain"
)

func TestMachinePublishesEvents(t *testing.T) {
	machine := NewMachine(NewState(klanten(t)))
	var events []Event
	machine.Subscribe(func(e Event) { events = append(events, e) })

	machine.LoadDataset(dataset(t, "Name"))
	machine.SelectSource("Name")
	machine.SelectTarget("firstname")
	machine.SetTransform(domain.ConnectionKey{Source: "Name", Ordinal: 0}, "value.trim()")
	machine.Disconnect(domain.ConnectionKey{Source: "Name", Ordinal: 0})

	kinds := make([]EventKind, len(events))
	for i, e := range events {
		kinds[i] = e.Kind
	}
	assert.Equal(t, []EventKind{
		EventDatasetLoaded,
		EventSelectionChanged,
		EventConnected,
		EventTransformChanged,
		EventDisconnected,
	}, kinds)
	assert.False(t, events[1].MappingChanged)
	assert.True(t, events[2].MappingChanged)
}

func TestMachineSkipsNoOpTransitions(t *testing.T) {
	machine := NewMachine(NewState(klanten(t)))
	calls := 0
	machine.Subscribe(func(Event) { calls++ })

	machine.Disconnect(domain.ConnectionKey{Source: "x", Ordinal: 1})
	machine.SelectSource("not loaded")
	machine.Reset()

	assert.Zero(t, calls)
}

func TestMachineStateIsACopy(t *testing.T) {
	machine := NewMachine(NewState(klanten(t)))
	machine.LoadDataset(dataset(t, "Name"))
	machine.SelectSource("Name")
	machine.SelectTarget("firstname")

	snapshot := machine.State()
	_ = snapshot.Disconnect(domain.ConnectionKey{Source: "Name", Ordinal: 0})

	require.Equal(t, 1, machine.State().EdgeCount())
}
