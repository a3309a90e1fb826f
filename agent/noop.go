package agent

import (
	"context"

	"github.com/bhavesh0009/options-day-trader-agent/risk"
)

// Noop never proposes anything.
type Noop struct{}

func (Noop) Decide(ctx context.Context, snap risk.Snapshot) (Proposal, error) {
	return Proposal{}, nil
}
