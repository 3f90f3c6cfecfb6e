package mirror

import (
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/conn-castle/patchmirror/internal/patch"
	"github.com/conn-castle/patchmirror/internal/version"
)

// CleanupPbe deletes from PBE storage every manifest, bundle and extracted
// release directory that kept does not reference. Deletion failures are
// collected; one failure does not stop the others.
func (m *Mirror) CleanupPbe(kept *patch.Patch) error {
	st, err := m.storages.ForBranch(version.BranchPBE)
	if err != nil {
		return err
	}

	keepManifests := make(map[string]struct{})
	keepBundles := make(map[uint64]struct{})
	for _, id := range kept.Manifests() {
		keepManifests[id] = struct{}{}
		manifest, err := st.LoadManifest(id)
		if err != nil {
			// Without the manifest its bundles cannot be told apart from
			// stale ones.
			return err
		}
		for _, b := range manifest.Bundles() {
			keepBundles[b] = struct{}{}
		}
	}

	var errs error
	removed := 0

	manifests, err := st.ManifestIDs()
	if err != nil {
		return err
	}
	for _, id := range manifests {
		if _, ok := keepManifests[id]; ok {
			continue
		}
		errs = multierr.Append(errs, st.RemoveManifest(id))
		removed++
	}

	bundles, err := st.BundleIDs()
	if err != nil {
		return multierr.Append(errs, err)
	}
	for _, id := range bundles {
		if _, ok := keepBundles[id]; ok {
			continue
		}
		errs = multierr.Append(errs, st.RemoveBundle(id))
		removed++
	}

	releases, err := st.ReleaseDirs()
	if err != nil {
		return multierr.Append(errs, err)
	}
	for _, release := range releases {
		if release == kept.Release {
			continue
		}
		errs = multierr.Append(errs, st.RemoveReleaseDir(release))
		removed++
	}

	m.logger.Info("pbe storage swept", zap.String("release", kept.Release), zap.Int("removed", removed))
	return errs
}
