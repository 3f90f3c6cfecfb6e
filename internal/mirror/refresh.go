package mirror

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/conn-castle/patchmirror/internal/export"
	"github.com/conn-castle/patchmirror/internal/hashes"
	"github.com/conn-castle/patchmirror/internal/messages"
	"github.com/conn-castle/patchmirror/internal/storage"
	"github.com/conn-castle/patchmirror/internal/version"
)

// RefreshForNewHashes re-exports, without overwriting, every exported
// version whose unknown-hash set intersects newHashes. PBE is considered
// only with includePbe. An empty newHashes does nothing at all.
func (m *Mirror) RefreshForNewHashes(newHashes hashes.Set, includePbe bool) error {
	if len(newHashes) == 0 {
		return nil
	}
	versions, err := m.ExportedVersions()
	if err != nil {
		return err
	}
	for _, v := range versions {
		if v.IsPBE() && !includePbe {
			continue
		}
		dir := m.paths.ExportDir(v)
		unknown, err := hashes.LoadSet(m.fs, export.UnknownPath(dir))
		switch {
		case errors.Is(err, os.ErrNotExist):
			m.logger.Info("unknown-hash set missing, refreshing", zap.Stringer("version", v))
		case err != nil:
			return err
		case !unknown.Intersects(newHashes):
			m.logger.Debug("nothing new to name", zap.Stringer("version", v))
			continue
		}
		if err := m.refresh(v); err != nil {
			return err
		}
	}
	return nil
}

// refresh re-exports v in non-overwrite mode. Versions that are no longer
// routed or stored are skipped.
func (m *Mirror) refresh(v version.Version) error {
	st, ok := m.storages.ForVersion(v)
	if !ok {
		m.logger.Debug("version not mirrored, skipping refresh", zap.Stringer("version", v))
		return nil
	}
	p, err := st.LoadPatch(v)
	if errors.Is(err, storage.ErrNotFound) {
		m.logger.Warn("exported version has no stored patch, skipping refresh", zap.Stringer("version", v))
		return nil
	}
	if err != nil {
		return err
	}
	x, err := m.exporterFor()
	if err != nil {
		return err
	}
	m.logger.Info("refreshing export", zap.Stringer("version", v))
	_, err = x.Export(export.Target{Dir: m.paths.ExportDir(v), Patch: p, Storage: st}, false)
	return err
}

// ExportedVersions lists the versions present under the export root, in
// ascending order with PBE last. The latest shortcut is not a version.
func (m *Mirror) ExportedVersions() ([]version.Version, error) {
	infos, err := afero.ReadDir(m.fs, m.paths.ExportRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf(messages.MirrorListExportsFmt, m.paths.ExportRoot, err)
	}
	var out []version.Version
	for _, info := range infos {
		if info.Name() == export.LatestLink || !info.IsDir() {
			continue
		}
		v, err := version.Parse(info.Name())
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	version.Sort(out)
	return out, nil
}
