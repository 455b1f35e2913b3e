package mapping

import (
	"reflect"
	"sync"

	"github.com/rpattn/colmap/internal/domain"
)

// EventKind names what a transition changed.
type EventKind string

const (
	EventConnected        EventKind = "CONNECTED"
	EventDisconnected     EventKind = "DISCONNECTED"
	EventTransformChanged EventKind = "TRANSFORM_CHANGED"
	EventDatasetLoaded    EventKind = "DATASET_LOADED"
	EventSelectionChanged EventKind = "SELECTION_CHANGED"
	EventFilterChanged    EventKind = "FILTER_CHANGED"
	EventSchemaChanged    EventKind = "SCHEMA_CHANGED"
	EventReset            EventKind = "RESET"
	EventRestored         EventKind = "RESTORED"
)

// Event is delivered to subscribers after a transition changed the state.
type Event struct {
	Kind           EventKind
	State          State
	MappingChanged bool
}

// Listener receives events. Listeners run synchronously on the writer and must not call
// back into the machine.
type Listener func(Event)

// Machine serializes transitions over one State and publishes events.
type Machine struct {
	mu        sync.Mutex
	state     State
	listeners []Listener
}

// NewMachine starts a machine at initial.
func NewMachine(initial State) *Machine {
	if initial.edges == nil {
		initial.edges = map[domain.ConnectionKey]domain.MappingEdge{}
	}
	return &Machine{state: initial}
}

// Subscribe registers listener for future events.
func (m *Machine) Subscribe(listener Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, listener)
}

// State returns the current snapshot.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// SelectSource applies State.SelectSource.
func (m *Machine) SelectSource(column string) State {
	return m.apply(func(s State) State { return s.SelectSource(column) }, "")
}

// SelectTarget applies State.SelectTarget.
func (m *Machine) SelectTarget(column string) State {
	return m.apply(func(s State) State { return s.SelectTarget(column) }, "")
}

// Disconnect applies State.Disconnect.
func (m *Machine) Disconnect(key domain.ConnectionKey) State {
	return m.apply(func(s State) State { return s.Disconnect(key) }, EventDisconnected)
}

// SetTransform applies State.SetTransform.
func (m *Machine) SetTransform(key domain.ConnectionKey, expression string) State {
	return m.apply(func(s State) State { return s.SetTransform(key, expression) }, EventTransformChanged)
}

// LoadDataset applies State.LoadDataset.
func (m *Machine) LoadDataset(dataset domain.SourceDataset) State {
	return m.apply(func(s State) State { return s.LoadDataset(dataset) }, EventDatasetLoaded)
}

// SetSchema applies State.SetSchema.
func (m *Machine) SetSchema(schema domain.TargetSchema) State {
	return m.apply(func(s State) State { return s.SetSchema(schema) }, EventSchemaChanged)
}

// SetSourceFilter applies State.SetSourceFilter.
func (m *Machine) SetSourceFilter(query string) State {
	return m.apply(func(s State) State { return s.SetSourceFilter(query) }, EventFilterChanged)
}

// SetTargetFilter applies State.SetTargetFilter.
func (m *Machine) SetTargetFilter(query string) State {
	return m.apply(func(s State) State { return s.SetTargetFilter(query) }, EventFilterChanged)
}

// Reset applies State.Reset.
func (m *Machine) Reset() State {
	return m.apply(func(s State) State { return s.Reset() }, EventReset)
}

// Replace swaps in a restored state, e.g. after applying a profile.
func (m *Machine) Replace(next State) State {
	return m.apply(func(State) State { return next }, EventRestored)
}

// Update runs an arbitrary transition built from the exported State methods.
func (m *Machine) Update(kind EventKind, transition func(State) State) State {
	return m.apply(transition, kind)
}

func (m *Machine) apply(transition func(State) State, kind EventKind) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.state
	next := transition(prev.clone())
	if next.edges == nil {
		next.edges = map[domain.ConnectionKey]domain.MappingEdge{}
	}
	if equalStates(prev, next) {
		return next.clone()
	}
	m.state = next

	mappingChanged := !reflect.DeepEqual(prev.edges, next.edges)
	if kind == "" {
		kind = EventSelectionChanged
		if len(next.edges) > len(prev.edges) {
			kind = EventConnected
		}
	}
	event := Event{Kind: kind, State: next.clone(), MappingChanged: mappingChanged}
	for _, listener := range m.listeners {
		listener(event)
	}
	return next.clone()
}

func equalStates(a, b State) bool {
	return a.Schema.Name == b.Schema.Name &&
		a.Dataset == b.Dataset &&
		equalSelection(a.SelectedSource, b.SelectedSource) &&
		equalSelection(a.SelectedTarget, b.SelectedTarget) &&
		a.SourceFilter == b.SourceFilter &&
		a.TargetFilter == b.TargetFilter &&
		a.NextOrdinal == b.NextOrdinal &&
		reflect.DeepEqual(a.edges, b.edges)
}

func equalSelection(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
