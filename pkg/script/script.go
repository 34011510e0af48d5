// Package script loads rehearsal scripts: timed control-surface commands
// that stand in for the show's trigger layer while rehearsing.
package script

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"story-stage/pkg/audio"
	"story-stage/pkg/engine"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid script")

// Action is what a step does.
type Action string

const (
	ActionBackground  Action = "background"
	ActionBlank       Action = "blank"
	ActionOverlay     Action = "overlay"
	ActionCues        Action = "cues"
	ActionCancelAudio Action = "cancel_audio"
)

// Step is one timed command. At is measured from the start of the run.
type Step struct {
	At     time.Duration `yaml:"at"`
	Action Action        `yaml:"action"`
	Target string        `yaml:"target,omitempty"`
	Slot   string        `yaml:"slot,omitempty"`
	Cues   []audio.Cue   `yaml:"cues,omitempty"`
}

// Script is an ordered list of steps.
type Script struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// Load reads and validates a script file.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = path
	}
	return s, nil
}

// Parse decodes a script and sorts its steps by time. Steps sharing a time
// keep their file order.
func Parse(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	sort.SliceStable(s.Steps, func(i, j int) bool { return s.Steps[i].At < s.Steps[j].At })
	return &s, nil
}

// Validate checks every step and reports all problems at once.
func (s *Script) Validate() error {
	var errs []error
	for i, st := range s.Steps {
		if err := st.validate(); err != nil {
			errs = append(errs, fmt.Errorf("step %d: %w", i+1, err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

func (st Step) validate() error {
	if st.At < 0 {
		return fmt.Errorf("negative time %v", st.At)
	}
	switch st.Action {
	case ActionBackground, ActionBlank, ActionCancelAudio:
		return nil
	case ActionOverlay:
		_, err := engine.ParseSlot(st.Slot)
		return err
	case ActionCues:
		if len(st.Cues) == 0 {
			return errors.New("cues step without cues")
		}
		for j, c := range st.Cues {
			if c.Clip == "" {
				return fmt.Errorf("cue %d has no clip", j+1)
			}
		}
		return nil
	case "":
		return errors.New("missing action")
	}
	return fmt.Errorf("unknown action %q", st.Action)
}

// Duration is the time of the last step.
func (s *Script) Duration() time.Duration {
	var d time.Duration
	for _, st := range s.Steps {
		if st.At > d {
			d = st.At
		}
	}
	return d
}
