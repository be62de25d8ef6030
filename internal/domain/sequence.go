package domain

import (
	"errors"
	"fmt"
)

// SequenceStep is one scripted follow-up. DelayHours is cumulative from the
// initial send, not from the previous step.
type SequenceStep struct {
	DelayHours      int         `json:"delay_hours" yaml:"delay_hours"`
	StepType        MessageType `json:"step_type" yaml:"step_type"`
	SubjectTemplate string      `json:"subject_template" yaml:"subject_template"`
	BodyTemplate    string      `json:"body_template,omitempty" yaml:"body_template"`
}

// Status returns the campaign status a campaign moves to once this step is sent.
func (s SequenceStep) Status() CampaignStatus {
	return CampaignStatus(s.StepType)
}

// FollowupSequence is a named, ordered list of steps. Exactly one sequence is
// the default at any time.
type FollowupSequence struct {
	ID        string         `json:"id" db:"id"`
	Name      string         `json:"name" db:"name"`
	IsDefault bool           `json:"is_default" db:"is_default"`
	Steps     []SequenceStep `json:"steps" db:"steps"`
}

// StepAt returns the step at idx, or false when the sequence is exhausted.
func (f *FollowupSequence) StepAt(idx int) (SequenceStep, bool) {
	if f == nil || idx < 0 || idx >= len(f.Steps) {
		return SequenceStep{}, false
	}
	return f.Steps[idx], true
}

// IncrementalDelayHours is the wait between the previous touch and step idx.
func (f *FollowupSequence) IncrementalDelayHours(idx int) int {
	step, ok := f.StepAt(idx)
	if !ok {
		return 0
	}
	if idx == 0 {
		return step.DelayHours
	}
	return step.DelayHours - f.Steps[idx-1].DelayHours
}

var ErrInvalidSequence = errors.New("invalid follow-up sequence")

// stepOrder is the status progression a sequence walks through. A shorter
// sequence may end early on follow_up_final.
var stepOrder = []MessageType{MessageFollowUp1, MessageFollowUp2, MessageFollowUpFinal}

// Validate checks step types and that cumulative delays strictly increase.
func (f *FollowupSequence) Validate() error {
	if f.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidSequence)
	}
	if len(f.Steps) == 0 {
		return fmt.Errorf("%w: at least one step is required", ErrInvalidSequence)
	}
	if len(f.Steps) > len(stepOrder) {
		return fmt.Errorf("%w: at most %d steps are supported", ErrInvalidSequence, len(stepOrder))
	}
	prev := 0
	last := len(f.Steps) - 1
	for i, s := range f.Steps {
		if s.StepType != stepOrder[i] && !(i == last && s.StepType == MessageFollowUpFinal) {
			return fmt.Errorf("%w: step %d has type %q, want %q", ErrInvalidSequence, i, s.StepType, stepOrder[i])
		}
		if s.DelayHours <= prev {
			return fmt.Errorf("%w: step %d delay %dh must exceed %dh", ErrInvalidSequence, i, s.DelayHours, prev)
		}
		if s.SubjectTemplate == "" {
			return fmt.Errorf("%w: step %d has no subject template", ErrInvalidSequence, i)
		}
		prev = s.DelayHours
	}
	return nil
}

// DefaultSequence is the reference three-touch sequence (3, 7 and 14 days
// after the initial send).
func DefaultSequence() *FollowupSequence {
	return &FollowupSequence{
		Name:      "default",
		IsDefault: true,
		Steps: []SequenceStep{
			{DelayHours: 72, StepType: MessageFollowUp1, SubjectTemplate: "Re: {{ subject }}"},
			{DelayHours: 168, StepType: MessageFollowUp2, SubjectTemplate: "Re: {{ subject }}"},
			{DelayHours: 336, StepType: MessageFollowUpFinal, SubjectTemplate: "Closing the loop, {{ first_name | default: \"there\" }}"},
		},
	}
}
