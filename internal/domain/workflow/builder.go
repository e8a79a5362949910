package workflow

import (
	"context"
	"fmt"
	"sort"
)

// GuardFunc decides whether a guarded transition may be taken
type GuardFunc func(ctx context.Context) bool

// StateMachineBuilder assembles the transition table and builds machines from it
type StateMachineBuilder interface {
	// Configure returns the transition configuration for a source state
	Configure(state State) StateConfiguration

	// OnTransition registers an observer called after every successful Fire
	OnTransition(fn TransitionFunc) StateMachineBuilder

	// Build creates an independent machine starting in initialState
	Build(initialState State) StateMachine
}

// StateConfiguration configures the outgoing transitions of one state
type StateConfiguration interface {
	// Permit allows trigger to move the machine to toState
	Permit(trigger Trigger, toState State) StateConfiguration

	// PermitIf allows trigger to move the machine to toState when guard passes
	PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration
}

type transition struct {
	toState State
	guard   GuardFunc
}

type stateConfig struct {
	fromState   State
	transitions map[Trigger][]transition
}

type stateMachineBuilder struct {
	configurations map[State]*stateConfig
	observers      []TransitionFunc
}

type stateMachine struct {
	currentState   State
	configurations map[State]*stateConfig
	observers      []TransitionFunc
}

// NewBuilder creates an empty state machine builder
func NewBuilder() StateMachineBuilder {
	return &stateMachineBuilder{
		configurations: make(map[State]*stateConfig),
	}
}

// Configure returns the configuration for state, creating it on first use
func (b *stateMachineBuilder) Configure(state State) StateConfiguration {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}

	cfg, exists := b.configurations[state]
	if !exists {
		cfg = &stateConfig{
			fromState:   state,
			transitions: make(map[Trigger][]transition),
		}
		b.configurations[state] = cfg
	}

	return cfg
}

// OnTransition registers an observer for every machine built afterwards
func (b *stateMachineBuilder) OnTransition(fn TransitionFunc) StateMachineBuilder {
	if fn != nil {
		b.observers = append(b.observers, fn)
	}
	return b
}

// Build copies the transition table so machines never share mutable state
func (b *stateMachineBuilder) Build(initialState State) StateMachine {
	if !initialState.IsValid() {
		panic(fmt.Sprintf("invalid initial state: %s", initialState))
	}

	configs := make(map[State]*stateConfig, len(b.configurations))
	for state, cfg := range b.configurations {
		transitions := make(map[Trigger][]transition, len(cfg.transitions))
		for trigger, ts := range cfg.transitions {
			transitions[trigger] = append([]transition(nil), ts...)
		}
		configs[state] = &stateConfig{
			fromState:   state,
			transitions: transitions,
		}
	}

	return &stateMachine{
		currentState:   initialState,
		configurations: configs,
		observers:      append([]TransitionFunc(nil), b.observers...),
	}
}

// Permit allows trigger to move the machine to toState
func (c *stateConfig) Permit(trigger Trigger, toState State) StateConfiguration {
	return c.PermitIf(trigger, toState, nil)
}

// PermitIf allows trigger to move the machine to toState when guard passes
func (c *stateConfig) PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration {
	if !toState.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", toState))
	}

	c.transitions[trigger] = append(c.transitions[trigger], transition{
		toState: toState,
		guard:   guard,
	})

	return c
}

// State returns the current state
func (m *stateMachine) State() State {
	return m.currentState
}

// CanFire reports whether any transition is configured for trigger.
// Guards are not evaluated since they need a context.
func (m *stateMachine) CanFire(trigger Trigger) bool {
	return len(m.transitionsFor(trigger)) > 0
}

// Destination returns the target of the first transition configured for trigger
func (m *stateMachine) Destination(trigger Trigger) (State, bool) {
	ts := m.transitionsFor(trigger)
	if len(ts) == 0 {
		return "", false
	}
	return ts[0].toState, true
}

// Fire takes the first transition for trigger whose guard passes
func (m *stateMachine) Fire(ctx context.Context, trigger Trigger) error {
	ts := m.transitionsFor(trigger)
	if len(ts) == 0 {
		return fmt.Errorf("%w: cannot %s from state %s", ErrInvalidTransition, trigger.Verb(), m.currentState)
	}

	for _, t := range ts {
		if t.guard != nil && !t.guard(ctx) {
			continue
		}
		from := m.currentState
		m.currentState = t.toState
		for _, observe := range m.observers {
			observe(from, t.toState, trigger)
		}
		return nil
	}

	return fmt.Errorf("%w: trigger %s from state %s", ErrGuardFailed, trigger, m.currentState)
}

// PermittedTriggers returns the configured triggers of the current state in a stable order
func (m *stateMachine) PermittedTriggers() []Trigger {
	cfg, exists := m.configurations[m.currentState]
	if !exists {
		return []Trigger{}
	}

	triggers := make([]Trigger, 0, len(cfg.transitions))
	for trigger, ts := range cfg.transitions {
		if len(ts) > 0 {
			triggers = append(triggers, trigger)
		}
	}
	sort.Slice(triggers, func(i, j int) bool { return triggers[i] < triggers[j] })

	return triggers
}

func (m *stateMachine) transitionsFor(trigger Trigger) []transition {
	cfg, exists := m.configurations[m.currentState]
	if !exists {
		return nil
	}
	return cfg.transitions[trigger]
}
