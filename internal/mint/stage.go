package mint

import (
	"fmt"
	"slices"
)

// Stage is a minting pipeline state.
type Stage string

const (
	StageBuilding   Stage = "building"
	StageSigning    Stage = "signing"
	StageSubmitting Stage = "submitting"
	StageConfirming Stage = "confirming"
	StageConfirmed  Stage = "confirmed"
	StageFailed     Stage = "failed"
)

// transitions lists the allowed next stages. Failed is reachable from every
// non-terminal stage; no forward stage may be skipped.
var transitions = map[Stage][]Stage{
	StageBuilding:   {StageSigning, StageFailed},
	StageSigning:    {StageSubmitting, StageFailed},
	StageSubmitting: {StageConfirming, StageFailed},
	StageConfirming: {StageConfirmed, StageFailed},
	StageConfirmed:  {},
	StageFailed:     {},
}

// CanTransitionTo reports whether next may follow s.
func (s Stage) CanTransitionTo(next Stage) bool {
	return slices.Contains(transitions[s], next)
}

// IsTerminal reports whether s ends a run.
func (s Stage) IsTerminal() bool {
	return s == StageConfirmed || s == StageFailed
}

// machine tracks a single run's stage and the stages it has passed through.
type machine struct {
	current Stage
	history []Stage
}

func newMachine() *machine {
	return &machine{current: StageBuilding, history: []Stage{StageBuilding}}
}

func (m *machine) advance(next Stage) error {
	if !m.current.CanTransitionTo(next) {
		return fmt.Errorf("invalid mint transition %s -> %s", m.current, next)
	}
	m.current = next
	m.history = append(m.history, next)
	return nil
}
