package mirror

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/conn-castle/patchmirror/internal/export"
	"github.com/conn-castle/patchmirror/internal/ledger"
	"github.com/conn-castle/patchmirror/internal/messages"
	"github.com/conn-castle/patchmirror/internal/patch"
	"github.com/conn-castle/patchmirror/internal/storage"
	"github.com/conn-castle/patchmirror/internal/version"
)

// NewPatch runs a full update of branch under the update lock: detect,
// fetch and resolve, refresh other exports, export the new patch, record
// it in the ledger and, for PBE, sweep storage. Each step is durable before
// the next starts, so an interrupted run is resumed by the next one.
func (m *Mirror) NewPatch(ctx context.Context, branch version.Branch) error {
	// Branch storage is an explicit request; fail before taking the lock.
	if _, err := m.storages.ForBranch(branch); err != nil {
		return err
	}
	return m.locked(func() error {
		p, err := m.CheckForNewPatch(ctx, branch)
		if err != nil || p == nil {
			return err
		}
		newHashes, err := m.FetchAndResolve(ctx, p)
		if err != nil {
			return err
		}
		if err := m.RefreshForNewHashes(newHashes, branch == version.BranchPBE); err != nil {
			return err
		}
		if err := m.ExportPatch(p); err != nil {
			return err
		}
		if err := m.recordPatch(branch, p); err != nil {
			return err
		}
		if branch == version.BranchPBE {
			return m.CleanupPbe(p)
		}
		return nil
	})
}

// recordPatch saves the element records of p next to its content, then the
// ledger. The records describe what the ledger points at and back the PBE
// baseline of the next run.
func (m *Mirror) recordPatch(branch version.Branch, p *patch.Patch) error {
	st, err := m.storages.MustForVersion(p.Version)
	if err != nil {
		return err
	}
	for _, e := range p.Elements {
		if err := st.SaveElement(p.Release, e); err != nil {
			return err
		}
	}
	recorded, err := m.Ledger(branch)
	if err != nil {
		return err
	}
	next := recorded.Merge(p.ChannelVersions())
	if err := ledger.Save(m.fs, m.paths.Ledger(branch), next); err != nil {
		return err
	}
	m.logger.Info("ledger updated", zap.String("branch", string(branch)), zap.Stringer("version", p.Version))
	return nil
}

// Update re-exports versions, or every exported version plus PBE when
// versions is empty. Without force, existing output is kept and only
// missing files are written.
func (m *Mirror) Update(ctx context.Context, force bool, versions []version.Version) error {
	return m.locked(func() error {
		explicit := len(versions) > 0
		if !explicit {
			var err error
			versions, err = m.updateCandidates()
			if err != nil {
				return err
			}
		} else {
			versions = append([]version.Version(nil), versions...)
			version.Sort(versions)
		}
		for _, v := range versions {
			if err := ctx.Err(); err != nil {
				return err
			}
			st, ok := m.storages.ForVersion(v)
			if !ok && explicit {
				_, err := m.storages.MustForVersion(v)
				return err
			}
			if !ok {
				m.logger.Debug("version not mirrored, skipping", zap.Stringer("version", v))
				continue
			}
			p, err := st.LoadPatch(v)
			if errors.Is(err, storage.ErrNotFound) && !explicit {
				m.logger.Warn("no stored patch, skipping", zap.Stringer("version", v))
				continue
			}
			if err != nil {
				return fmt.Errorf(messages.MirrorUpdateFmt, v, err)
			}
			if err := m.exportPatch(p, force); err != nil {
				return err
			}
		}
		return nil
	})
}

// updateCandidates lists exported versions and adds PBE when it is
// configured but was never exported.
func (m *Mirror) updateCandidates() ([]version.Version, error) {
	versions, err := m.ExportedVersions()
	if err != nil {
		return nil, err
	}
	if !m.cfg.Router().PBEEnabled() {
		return versions, nil
	}
	for _, v := range versions {
		if v.IsPBE() {
			return versions, nil
		}
	}
	return append(versions, version.PBE), nil
}

// SweepPBE runs the PBE sweeper alone, keeping the last stored PBE patch.
func (m *Mirror) SweepPBE(ctx context.Context) error {
	st, err := m.storages.ForBranch(version.BranchPBE)
	if err != nil {
		return err
	}
	return m.locked(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		kept, err := st.LoadPatch(version.PBE)
		if err != nil {
			return fmt.Errorf(messages.MirrorSweepFmt, err)
		}
		return m.CleanupPbe(kept)
	})
}

// Status is a read-only summary of the mirror state.
type Status struct {
	Ledgers  map[version.Branch]ledger.LastVersions
	Exported []version.Version
	// Latest is the target of the latest shortcut, empty when absent.
	Latest string
}

// Status reads the ledgers and the export root.
func (m *Mirror) Status() (*Status, error) {
	st := &Status{Ledgers: make(map[version.Branch]ledger.LastVersions, 2)}
	for _, branch := range []version.Branch{version.BranchLive, version.BranchPBE} {
		lv, err := m.Ledger(branch)
		if err != nil {
			return nil, err
		}
		st.Ledgers[branch] = lv
	}
	exported, err := m.ExportedVersions()
	if err != nil {
		return nil, err
	}
	st.Exported = exported
	st.Latest = m.latestTarget()
	return st, nil
}

func (m *Mirror) latestTarget() string {
	reader, ok := m.fs.(afero.LinkReader)
	if !ok {
		return ""
	}
	target, err := reader.ReadlinkIfPossible(filepath.Join(m.paths.ExportRoot, export.LatestLink))
	if err != nil {
		return ""
	}
	return target
}
