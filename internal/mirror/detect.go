package mirror

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/conn-castle/patchmirror/internal/ledger"
	"github.com/conn-castle/patchmirror/internal/messages"
	"github.com/conn-castle/patchmirror/internal/patch"
	"github.com/conn-castle/patchmirror/internal/version"
)

// Probe is the outcome of comparing a branch's upstream state with its
// ledger.
type Probe struct {
	Branch   version.Branch
	Patch    *patch.Patch
	Recorded ledger.LastVersions
	Probed   ledger.LastVersions
}

// New reports whether any channel advanced past the ledger.
func (p *Probe) New() bool {
	return p.Recorded.AdvancedBy(p.Probed)
}

// Next returns the ledger that a successful update would write.
func (p *Probe) Next() ledger.LastVersions {
	return p.Recorded.Merge(p.Probed)
}

// Probe fetches the current release of branch without persisting anything
// and pairs it with the recorded ledger.
func (m *Mirror) Probe(ctx context.Context, branch version.Branch) (*Probe, error) {
	if m.client == nil {
		return nil, ErrNoUpstream
	}
	recorded, err := m.Ledger(branch)
	if err != nil {
		return nil, err
	}
	current, err := m.client.Current(ctx, branch)
	if err != nil {
		return nil, fmt.Errorf(messages.MirrorProbeFmt, branch, err)
	}
	return &Probe{
		Branch:   branch,
		Patch:    current,
		Recorded: recorded,
		Probed:   current.ChannelVersions(),
	}, nil
}

// CheckForNewPatch returns the current patch of branch when at least one of
// its channels is ahead of the ledger, and nil otherwise.
func (m *Mirror) CheckForNewPatch(ctx context.Context, branch version.Branch) (*patch.Patch, error) {
	probe, err := m.Probe(ctx, branch)
	if err != nil {
		return nil, err
	}
	if !probe.New() {
		m.logger.Info("no new patch", zap.String("branch", string(branch)))
		return nil, nil
	}
	m.logger.Info("new patch detected",
		zap.String("branch", string(branch)),
		zap.Stringer("version", probe.Patch.Version),
		zap.String("release", probe.Patch.Release))
	return probe.Patch, nil
}
