package bisect

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Checkpoint is the resumable part of a session.
type Checkpoint struct {
	ID         string `json:"id"`
	App        string `json:"app"`
	RangeStart int    `json:"range_start"`
	RangeEnd   int    `json:"range_end"`
	Candidate  string `json:"candidate,omitempty"`
	History    []Step `json:"history"`
	State      State  `json:"state"`
	Result     string `json:"result,omitempty"`
}

func (s *Session) Checkpoint() Checkpoint {
	return Checkpoint{
		ID:         s.ID,
		App:        s.App,
		RangeStart: s.RangeStart,
		RangeEnd:   s.RangeEnd,
		Candidate:  s.Candidate,
		History:    append([]Step(nil), s.History...),
		State:      s.State,
		Result:     s.Result,
	}
}

// Restore rebuilds a session from cp. Narrowing is transient and never
// restored; a checkpoint taken mid-round resumes as awaiting feedback.
func Restore(flags Flags, cp Checkpoint) (*Session, error) {
	active := cp.State == AwaitingFeedback || cp.State == Narrowing
	if active && cp.RangeStart >= cp.RangeEnd {
		return nil, fmt.Errorf("%w: [%d, %d)", ErrInvalidRange, cp.RangeStart, cp.RangeEnd)
	}
	if cp.State == Narrowing {
		cp.State = AwaitingFeedback
	}
	return &Session{
		flags:      flags,
		ID:         cp.ID,
		App:        cp.App,
		RangeStart: cp.RangeStart,
		RangeEnd:   cp.RangeEnd,
		Candidate:  cp.Candidate,
		History:    append([]Step(nil), cp.History...),
		State:      cp.State,
		Result:     cp.Result,
	}, nil
}

func SaveCheckpoint(path string, cp Checkpoint) error {
	b, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// LoadCheckpoint returns os.ErrNotExist when no session is parked at path.
func LoadCheckpoint(path string) (Checkpoint, error) {
	var cp Checkpoint
	b, err := os.ReadFile(path)
	if err != nil {
		return cp, err
	}
	if err := json.Unmarshal(b, &cp); err != nil {
		return cp, fmt.Errorf("unable to read bisect checkpoint %s: %w", path, err)
	}
	return cp, nil
}

// ClearCheckpoint removes the file; a missing file is not an error.
func ClearCheckpoint(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
