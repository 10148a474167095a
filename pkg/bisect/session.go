// Package bisect narrows a numeric flag range down to the single flag behind an
// observed behavior. Each round injects the lower half of the range as one
// range flag and waits, for as long as it takes, for an operator to report
// whether the behavior is still there.
package bisect

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/aitweaker/tweakd/pkg/configsync"
	"github.com/aitweaker/tweakd/pkg/model"
	"github.com/aitweaker/tweakd/pkg/registry"
)

const (
	CandidateNote = "Binary Search: Lower Half"
	IsolatedNote  = "Isolated"
)

type State string

const (
	Idle             State = "idle"
	AwaitingFeedback State = "awaiting_feedback"
	Narrowing        State = "narrowing"
	Converged        State = "converged"
	Aborted          State = "aborted"
)

func (s State) Terminal() bool {
	return s == Converged || s == Aborted
}

type Verdict string

const (
	Pending Verdict = "pending"
	Present Verdict = "present"
	Absent  Verdict = "absent"
)

var (
	ErrInvalidRange = errors.New("invalid search range")
	ErrWrongState   = errors.New("operation not allowed in this state")
	ErrBadVerdict   = errors.New("verdict must be present or absent")
)

// Step is one injected candidate and what the operator said about it.
type Step struct {
	Candidate string  `json:"candidate"`
	Verdict   Verdict `json:"verdict"`
}

// Flags is the part of the sync engine a session drives.
type Flags interface {
	Snapshot() model.Configuration
	Do(ctx context.Context, name string, t configsync.Transform) error
}

type Session struct {
	flags Flags

	ID         string
	App        string
	RangeStart int
	RangeEnd   int
	// Candidate is the range flag injected for the current round. The
	// session created it and is the only one that removes it.
	Candidate string
	History    []Step
	State      State
	Result     string
}

func New(flags Flags, app string) *Session {
	return &Session{flags: flags, ID: uuid.NewString(), App: app, State: Idle}
}

// Start begins a search over [start, end) and injects the first candidate.
func (s *Session) Start(ctx context.Context, start, end int) error {
	if s.State != Idle {
		return fmt.Errorf("%w: start from %s", ErrWrongState, s.State)
	}
	if start < 0 || start >= end {
		return fmt.Errorf("%w: [%d, %d)", ErrInvalidRange, start, end)
	}
	s.RangeStart, s.RangeEnd = start, end
	if err := s.advance(ctx); err != nil {
		s.RangeStart, s.RangeEnd = 0, 0
		s.State = Idle
		return err
	}
	return nil
}

// Feedback records the operator's verdict on the current candidate and moves
// to the next round. On a failed sync the session stays where it was.
func (s *Session) Feedback(ctx context.Context, v Verdict) error {
	if s.State != AwaitingFeedback {
		return fmt.Errorf("%w: feedback in %s", ErrWrongState, s.State)
	}
	if v != Present && v != Absent {
		return ErrBadVerdict
	}
	prevStart, prevEnd := s.RangeStart, s.RangeEnd
	mid := midpoint(s.RangeStart, s.RangeEnd)
	if v == Present {
		s.RangeEnd = mid
	} else {
		s.RangeStart = mid
	}
	last := len(s.History) - 1
	s.History[last].Verdict = v
	s.State = Narrowing
	log.Debugf("bisect %s: %s for %s, range now [%d, %d)", s.ID, v, s.Candidate, s.RangeStart, s.RangeEnd)

	if err := s.advance(ctx); err != nil {
		s.RangeStart, s.RangeEnd = prevStart, prevEnd
		s.History[last].Verdict = Pending
		s.State = AwaitingFeedback
		return err
	}
	return nil
}

// Abort ends the session. Whatever candidate is injected stays injected.
func (s *Session) Abort() error {
	if s.State.Terminal() {
		return fmt.Errorf("%w: abort from %s", ErrWrongState, s.State)
	}
	s.State = Aborted
	return nil
}

// Resume re-injects the current candidate if it went missing from the
// configuration while the session was parked.
func (s *Session) Resume(ctx context.Context) error {
	if s.State != AwaitingFeedback {
		return nil
	}
	if _, ok := registry.Lookup(s.flags.Snapshot().App(s.App), s.Candidate); ok {
		return nil
	}
	log.Infof("bisect %s: candidate %s is gone, injecting it again", s.ID, s.Candidate)
	return s.flags.Do(ctx, "bisect resume "+s.Candidate, s.inject("", s.Candidate))
}

// StepsTaken is the number of verdicts given so far.
func (s *Session) StepsTaken() int {
	n := 0
	for _, st := range s.History {
		if st.Verdict != Pending {
			n++
		}
	}
	return n
}

func (s *Session) advance(ctx context.Context) error {
	if s.RangeEnd-s.RangeStart <= 1 {
		result := strconv.Itoa(s.RangeStart)
		if err := s.flags.Do(ctx, "bisect isolate "+result, s.isolate(s.Candidate, result)); err != nil {
			return err
		}
		s.Result = result
		s.Candidate = ""
		s.State = Converged
		log.Infof("bisect %s: isolated flag %s in %d steps", s.ID, result, s.StepsTaken())
		return nil
	}

	mid := midpoint(s.RangeStart, s.RangeEnd)
	candidate := model.RangeToken{Start: s.RangeStart, End: mid}.String()
	if err := s.flags.Do(ctx, "bisect candidate "+candidate, s.inject(s.Candidate, candidate)); err != nil {
		return err
	}
	s.Candidate = candidate
	s.History = append(s.History, Step{Candidate: candidate, Verdict: Pending})
	s.State = AwaitingFeedback
	return nil
}

// inject swaps prior for the candidate id in a single configuration change, so
// the store never holds two candidates of this session at once. prior is
// always a flag this session created. An id the operator already has is never
// taken over; the round fails with registry.ErrIdConflict instead.
func (s *Session) inject(prior, id string) configsync.Transform {
	entry := model.FlagEntry{Note: CandidateNote, Enabled: true}
	return configsync.UpdateApp(s.App, func(app model.AppConfig) (model.AppConfig, error) {
		if _, ok := registry.Lookup(app, id); ok && id != prior {
			return app, fmt.Errorf("%w: %s belongs to the operator, remove or rename it to continue", registry.ErrIdConflict, id)
		}
		if prior != "" {
			app = registry.RemoveFlag(app, prior)
		}
		return registry.AddFlagWithEntry(app, id, entry)
	})
}

// isolate removes the last candidate and adds the result. A result id that is
// already configured is left exactly as the operator set it.
func (s *Session) isolate(prior, id string) configsync.Transform {
	entry := model.FlagEntry{Note: IsolatedNote, Enabled: true}
	return configsync.UpdateApp(s.App, func(app model.AppConfig) (model.AppConfig, error) {
		if prior != "" {
			app = registry.RemoveFlag(app, prior)
		}
		if _, ok := registry.Lookup(app, id); ok {
			return app, nil
		}
		return registry.AddFlagWithEntry(app, id, entry)
	})
}

func midpoint(start, end int) int {
	return start + (end-start)/2
}
