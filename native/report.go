package native

import (
	"fmt"

	"github.com/chazu/talc/model"
)

// Phase is the state of a generation pass.
type Phase int

const (
	PhaseStart Phase = iota
	PhaseNamesAssigned
	PhaseAllLowered
	PhaseAborted
	PhaseEmitting
	PhaseDone
)

var phaseNames = [...]string{
	PhaseStart:         "start",
	PhaseNamesAssigned: "names-assigned",
	PhaseAllLowered:    "all-lowered",
	PhaseAborted:       "aborted",
	PhaseEmitting:      "emitting",
	PhaseDone:          "done",
}

func (p Phase) String() string {
	if int(p) >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// MethodStatus is the outcome of one method in a pass.
type MethodStatus int

const (
	StatusPending MethodStatus = iota
	StatusEmitted
	StatusSkipped
)

func (s MethodStatus) String() string {
	switch s {
	case StatusEmitted:
		return "emitted"
	case StatusSkipped:
		return "skipped"
	}
	return "pending"
}

// EmittedMethod is a method present in the container.
type EmittedMethod struct {
	Name     string
	Selector string
}

// SkippedMethod records a method that couldn't be emitted.
type SkippedMethod struct {
	Selector string
	Name     string
	Reason   string
}

// Report describes one generation pass over a class side.
type Report struct {
	Class     string
	Side      model.Side
	Phase     Phase
	Emitted   []EmittedMethod
	Skipped   []SkippedMethod
	Excluded  bool
	Succeeded bool
	Failure   string // set when the pass aborted
}

// Status returns the outcome of selector. Methods of an aborted pass stay
// pending.
func (r *Report) Status(selector string) MethodStatus {
	for _, m := range r.Emitted {
		if m.Selector == selector {
			return StatusEmitted
		}
	}
	for _, m := range r.Skipped {
		if m.Selector == selector {
			return StatusSkipped
		}
	}
	return StatusPending
}

// NameOf returns the native name of an emitted selector.
func (r *Report) NameOf(selector string) (string, bool) {
	for _, m := range r.Emitted {
		if m.Selector == selector {
			return m.Name, true
		}
	}
	return "", false
}

// EmittedNames returns the native names in emission order.
func (r *Report) EmittedNames() []string {
	names := make([]string, len(r.Emitted))
	for i, m := range r.Emitted {
		names[i] = m.Name
	}
	return names
}

func (r *Report) String() string {
	switch {
	case r.Excluded:
		return fmt.Sprintf("%s %s: excluded", r.Class, r.Side)
	case r.Phase == PhaseAborted:
		return fmt.Sprintf("%s %s: aborted: %s", r.Class, r.Side, r.Failure)
	}
	return fmt.Sprintf("%s %s: %d emitted, %d skipped", r.Class, r.Side, len(r.Emitted), len(r.Skipped))
}
