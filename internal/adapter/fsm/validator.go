package fsm

import (
	"context"
	"errors"

	loopfsm "github.com/looplab/fsm"

	"github.com/neomorfeo/croptrace/internal/domain"
)

// Compile-time checks: both lifecycle validators implement domain.TransitionValidator.
var (
	_ domain.TransitionValidator[domain.OriginStatus, domain.OriginEvent]   = (*Validator[domain.OriginStatus, domain.OriginEvent])(nil)
	_ domain.TransitionValidator[domain.ProductStatus, domain.ProductEvent] = (*Validator[domain.ProductStatus, domain.ProductEvent])(nil)
)

// buildEvents converts a domain transition table into looplab/fsm EventDesc
// format. Transitions sharing event and destination are consolidated into a
// single EventDesc with multiple source states.
func buildEvents[S ~string, E ~string](transitions []domain.Transition[S, E]) []loopfsm.EventDesc {
	type key struct {
		event string
		dst   string
	}
	grouped := make(map[key][]string)
	order := make([]key, 0)

	for _, t := range transitions {
		k := key{event: string(t.Event), dst: string(t.Dst)}
		if _, exists := grouped[k]; !exists {
			order = append(order, k)
		}
		grouped[k] = append(grouped[k], string(t.Src))
	}

	out := make([]loopfsm.EventDesc, 0, len(order))
	for _, k := range order {
		out = append(out, loopfsm.EventDesc{
			Name: k.event,
			Src:  grouped[k],
			Dst:  k.dst,
		})
	}
	return out
}

// Validator implements domain.TransitionValidator using looplab/fsm.
// It creates a short-lived FSM instance per Apply call, initialized with
// the lot's current state, because looplab/fsm tracks the current state
// internally.
type Validator[S ~string, E ~string] struct {
	events []loopfsm.EventDesc
}

// New creates an FSM-backed validator for the given transition table.
func New[S ~string, E ~string](transitions []domain.Transition[S, E]) *Validator[S, E] {
	return &Validator[S, E]{events: buildEvents(transitions)}
}

// NewOriginValidator validates the origin lot lifecycle.
func NewOriginValidator() *Validator[domain.OriginStatus, domain.OriginEvent] {
	return New(domain.OriginTransitions)
}

// NewProductValidator validates the product lot lifecycle.
func NewProductValidator() *Validator[domain.ProductStatus, domain.ProductEvent] {
	return New(domain.ProductTransitions)
}

// Apply checks if the given event is valid from the current state and
// returns the destination state. Returns a domain.TransitionError if
// the transition is not allowed.
func (v *Validator[S, E]) Apply(ctx context.Context, current S, event E) (S, error) {
	machine := loopfsm.NewFSM(string(current), v.events, nil)

	if err := machine.Event(ctx, string(event)); err != nil {
		var invalidEvent loopfsm.InvalidEventError
		var unknownEvent loopfsm.UnknownEventError
		var noTransition loopfsm.NoTransitionError
		if errors.As(err, &invalidEvent) || errors.As(err, &unknownEvent) || errors.As(err, &noTransition) {
			return "", &domain.TransitionError{
				Event:   string(event),
				Current: string(current),
			}
		}
		return "", err
	}

	return S(machine.Current()), nil
}
