package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/bhavesh0009/options-day-trader-agent/gate"
	"github.com/bhavesh0009/options-day-trader-agent/risk"
	"gopkg.in/yaml.v3"
)

// Script is a recorded session: one proposal per trading iteration.
type Script struct {
	Steps []Proposal `yaml:"steps"`
	// Repeat replays the last step forever once the script runs out.
	Repeat bool `yaml:"repeat"`
	// FailAt makes Decide return an error at these 1-based iterations.
	FailAt []int `yaml:"fail_at,omitempty"`
}

// Scripted replays a Script. It's the agent used for paper runs and
// deterministic controller tests.
type Scripted struct {
	script Script

	mu       sync.Mutex
	step     int
	prepared bool
	outcomes map[gate.Status]int
	notes    []string
}

var ErrScriptedFailure = errors.New("scripted failure")

func NewScripted(s Script) *Scripted {
	return &Scripted{script: s, outcomes: make(map[gate.Status]int)}
}

// LoadScript reads a YAML script from path.
func LoadScript(path string) (*Scripted, error) {
	if path == "" {
		return nil, errors.New("scripted: script path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return ParseScript(data)
}

func ParseScript(data []byte) (*Scripted, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	for i, st := range s.Steps {
		for j, a := range st.Actions {
			if a.Symbol == "" {
				return nil, fmt.Errorf("parse script: step %d action %d: symbol is required", i+1, j+1)
			}
		}
	}
	return NewScripted(s), nil
}

func (s *Scripted) Prepare(ctx context.Context, snap risk.Snapshot) error {
	s.mu.Lock()
	s.prepared = true
	s.mu.Unlock()
	return nil
}

func (s *Scripted) Decide(ctx context.Context, snap risk.Snapshot) (Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.step++
	for _, n := range s.script.FailAt {
		if n == s.step {
			return Proposal{}, fmt.Errorf("%w at step %d", ErrScriptedFailure, s.step)
		}
	}

	steps := s.script.Steps
	i := s.step - 1
	switch {
	case i < len(steps):
	case s.script.Repeat && len(steps) > 0:
		i = len(steps) - 1
	default:
		return Proposal{}, nil
	}
	p := steps[i]
	// Hand out fresh copies so ids assigned downstream don't leak back.
	p.Actions = append([]risk.ActionRequest(nil), p.Actions...)
	return p, nil
}

func (s *Scripted) Observe(ctx context.Context, outcomes []gate.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range outcomes {
		s.outcomes[o.Status]++
		s.notes = append(s.notes, o.String())
	}
}

func (s *Scripted) Summarize(ctx context.Context, snap risk.Snapshot) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var b strings.Builder
	fmt.Fprintf(&b, "iterations=%d daily_pnl=%.2f realized=%.2f fills=%d", snap.Iteration, snap.DailyPnL, snap.RealizedPnL, snap.Fills)
	fmt.Fprintf(&b, " filled=%d accepted=%d rejected=%d failed=%d",
		s.outcomes[gate.Filled], s.outcomes[gate.Accepted], s.outcomes[gate.Rejected], s.outcomes[gate.Failed])
	if snap.StopReason != risk.NoStop {
		fmt.Fprintf(&b, " stop=%s", snap.StopReason)
	}
	return b.String(), nil
}

// Prepared reports whether Prepare ran.
func (s *Scripted) Prepared() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prepared
}

// Notes returns the outcome texts observed so far.
func (s *Scripted) Notes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.notes...)
}
