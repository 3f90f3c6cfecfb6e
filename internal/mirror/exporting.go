package mirror

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/conn-castle/patchmirror/internal/export"
	"github.com/conn-castle/patchmirror/internal/messages"
	"github.com/conn-castle/patchmirror/internal/patch"
	"github.com/conn-castle/patchmirror/internal/storage"
	"github.com/conn-castle/patchmirror/internal/version"
)

// ExportPatch fully exports p, overwriting existing output.
func (m *Mirror) ExportPatch(p *patch.Patch) error {
	return m.exportPatch(p, true)
}

func (m *Mirror) exportPatch(p *patch.Patch, overwrite bool) error {
	st, err := m.storages.MustForVersion(p.Version)
	if err != nil {
		return err
	}
	target := export.Target{Dir: m.paths.ExportDir(p.Version), Patch: p, Storage: st}
	if p.Version.IsPBE() {
		prev, err := m.previousPBEPatch(st)
		if err != nil {
			return err
		}
		// The release already exported here is no baseline for itself;
		// reusing it would keep every file and defeat overwrite.
		if prev != nil && prev.Release != p.Release {
			target.Previous = prev
			target.PreviousDir = target.Dir
		}
		// PBE has a single export directory; there is nothing to link to.
		target.Symlinks = false
	} else if !m.cfg.Router().IsBaseline(p.Version) {
		prev, err := st.PreviousPatch(p.Version)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: "+messages.MirrorNoPredecessorFmt, ErrNoPredecessor, p.Version)
		}
		if err != nil {
			return err
		}
		target.Previous = prev
		target.PreviousDir = m.paths.ExportDir(prev.Version)
		target.Symlinks = m.cfg.Symlinks()
	}

	x, err := m.exporterFor()
	if err != nil {
		return err
	}
	fields := []zap.Field{zap.Stringer("version", p.Version), zap.Bool("overwrite", overwrite)}
	if target.Previous != nil {
		fields = append(fields, zap.String("previous_release", target.Previous.Release))
	}
	m.logger.Info("exporting patch", fields...)
	if _, err := x.Export(target, overwrite); err != nil {
		return fmt.Errorf(messages.MirrorExportFmt, p.Version, err)
	}
	if p.Version.IsPBE() {
		return nil
	}
	return export.UpdateLatest(m.fs, m.paths.ExportRoot, p.Version)
}

// previousPBEPatch synthesizes the PBE patch last recorded in the PBE
// ledger from the element records kept in PBE storage. Unlike numbered
// predecessors it is optional: with no ledger entry, or records that do not
// describe one complete release, the export simply has no baseline.
func (m *Mirror) previousPBEPatch(st *storage.Storage) (*patch.Patch, error) {
	recorded, err := m.Ledger(version.BranchPBE)
	if err != nil {
		return nil, err
	}
	if len(recorded) == 0 {
		return nil, nil
	}
	prev := &patch.Patch{Version: version.PBE, Stored: true}
	for _, channel := range recorded.Channels() {
		records, err := st.LoadElements(channel, recorded.Get(channel))
		if errors.Is(err, storage.ErrNotFound) {
			m.logger.Debug("no element record for recorded channel, exporting without baseline",
				zap.String("channel", channel), zap.Int("release", recorded.Get(channel)))
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			if prev.Release == "" {
				prev.Release = rec.Release
			}
			if rec.Release != prev.Release {
				m.logger.Debug("recorded elements span several releases, exporting without baseline")
				return nil, nil
			}
			prev.Elements = append(prev.Elements, rec.Element)
		}
	}
	return prev, nil
}
