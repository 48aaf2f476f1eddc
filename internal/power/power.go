// Package power tracks host power state and throttles background work while
// the device conserves energy. The host shell feeds doze and power-save
// transitions into a Source; the Monitor folds them into a single mode,
// forwards mode changes to the tunnel backend and pauses registered pollers.
package power

// Mode is the effective power mode derived from host state.
type Mode string

const (
	ModeNormal Mode = "normal"
	ModeLow    Mode = "low"
)

// State is a snapshot of the host's power-relevant flags.
type State struct {
	Doze      bool
	PowerSave bool
}

// Mode folds the flags into an effective mode: low when either doze or
// power-save is active.
func (s State) Mode() Mode {
	if s.Doze || s.PowerSave {
		return ModeLow
	}
	return ModeNormal
}

// Source delivers power state snapshots. Current returns the state at call
// time; Events yields a snapshot for every host transition.
type Source interface {
	Current() State
	Events() <-chan State
}

// Throttleable is background work that can be suspended in low power mode.
type Throttleable interface {
	Pause()
	Resume()
}

// ThrottleFuncs adapts a pair of functions to Throttleable.
type ThrottleFuncs struct {
	PauseFunc  func()
	ResumeFunc func()
}

func (t ThrottleFuncs) Pause() {
	if t.PauseFunc != nil {
		t.PauseFunc()
	}
}

func (t ThrottleFuncs) Resume() {
	if t.ResumeFunc != nil {
		t.ResumeFunc()
	}
}
