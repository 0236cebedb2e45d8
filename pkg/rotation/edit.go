package rotation

import (
	"github.com/pkg/errors"

	"github.com/sudomakeinstall/cardio/pkg/orientation"
)

// The editing helpers below treat an out-of-range index as a benign no-op and
// report it with a false return; UI updates can arrive for steps that have
// already been removed.

// AddStep appends a zero-angle step about axis and returns its index
func (s *Sequence) AddStep(axis orientation.EulerAxis) (int, error) {
	axis, err := orientation.ParseEulerAxis(string(axis))
	if err != nil {
		return -1, errors.Wrap(ErrInvalidStep, err.Error())
	}
	s.Steps = append(s.Steps, NewStep(axis))
	return len(s.Steps) - 1, nil
}

// RemoveStep deletes the step at index i. Steps marked non-deletable are
// refused with ErrNotDeletable.
func (s *Sequence) RemoveStep(i int) (bool, error) {
	if i < 0 || i >= len(s.Steps) {
		return false, nil
	}
	if !s.Steps[i].Deletable {
		return true, errors.Wrapf(ErrNotDeletable, "step %d", i)
	}
	steps := make([]Step, 0, len(s.Steps)-1)
	steps = append(steps, s.Steps[:i]...)
	steps = append(steps, s.Steps[i+1:]...)
	s.Steps = steps
	return true, nil
}

// SetStepAngle sets the angle of step i, in the sequence's units
func (s *Sequence) SetStepAngle(i int, angle float64) bool {
	if i < 0 || i >= len(s.Steps) {
		return false
	}
	s.Steps[i].Angle = angle
	return true
}

// SetStepVisible toggles whether step i contributes to the rotation
func (s *Sequence) SetStepVisible(i int, visible bool) bool {
	if i < 0 || i >= len(s.Steps) {
		return false
	}
	s.Steps[i].Visible = visible
	return true
}

// RenameStep sets the display name of step i
func (s *Sequence) RenameStep(i int, name string) (bool, error) {
	if i < 0 || i >= len(s.Steps) {
		return false, nil
	}
	if !s.Steps[i].NameEditable {
		return true, errors.Wrapf(ErrNameNotEditable, "step %d", i)
	}
	s.Steps[i].Name = name
	return true, nil
}

// Reset removes every step and keeps the metadata and origin
func (s *Sequence) Reset() {
	s.Steps = []Step{}
}
