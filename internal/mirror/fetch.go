package mirror

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/conn-castle/patchmirror/internal/guess"
	"github.com/conn-castle/patchmirror/internal/hashes"
	"github.com/conn-castle/patchmirror/internal/messages"
	"github.com/conn-castle/patchmirror/internal/patch"
	"github.com/conn-castle/patchmirror/internal/storage"
	"github.com/conn-castle/patchmirror/internal/wad"
)

// FetchAndResolve downloads the content of p and, when hash guessing is
// enabled, runs the guessing pipeline on its client and game archives. It
// returns the hashes newly resolved by this call.
func (m *Mirror) FetchAndResolve(ctx context.Context, p *patch.Patch) (hashes.Set, error) {
	if m.client == nil {
		return nil, ErrNoUpstream
	}
	st, err := m.storages.MustForVersion(p.Version)
	if err != nil {
		return nil, err
	}
	m.logger.Info("downloading patch", zap.Stringer("version", p.Version), zap.String("storage", st.Root()))
	if err := st.Download(ctx, m.client, p, m.cfg.Languages); err != nil {
		return nil, fmt.Errorf(messages.MirrorDownloadFmt, p.Version, err)
	}
	if !m.cfg.GuessHashes {
		return hashes.NewSet(), nil
	}

	elements := make(map[hashes.Kind]patch.Element, 2)
	for kind, name := range map[hashes.Kind]string{
		hashes.KindClient: patch.ElementClient,
		hashes.KindGame:   patch.ElementGame,
	} {
		e, ok := p.Element(name)
		if !ok {
			return nil, fmt.Errorf("%w: "+messages.MirrorMissingElementFmt, ErrStructureMismatch, p.Version, name)
		}
		elements[kind] = e
	}

	tables, err := m.hashTables()
	if err != nil {
		return nil, err
	}
	baseline := tables.Known()

	resolved := 0
	for _, kind := range []hashes.Kind{hashes.KindClient, hashes.KindGame} {
		n, err := m.guessKind(st, p, elements[kind], kind, tables.For(kind))
		if err != nil {
			return nil, err
		}
		resolved += n
	}
	if resolved == 0 {
		m.logger.Info("no new hashes resolved", zap.Stringer("version", p.Version))
		return hashes.NewSet(), nil
	}
	if err := tables.Save(m.fs, m.paths.HashesDir); err != nil {
		return nil, err
	}
	newHashes := tables.Known().SymmetricDifference(baseline)
	m.logger.Info("hashes resolved", zap.Stringer("version", p.Version), zap.Int("hashes", len(newHashes)))
	return newHashes, nil
}

func (m *Mirror) guessKind(st *storage.Storage, p *patch.Patch, e patch.Element, kind hashes.Kind, table *hashes.Table) (int, error) {
	paths, err := st.Archives(p.Release, e.Name)
	if err != nil {
		return 0, err
	}
	archives := make([]*wad.Archive, 0, len(paths))
	defer func() {
		for _, a := range archives {
			_ = a.Close()
		}
	}()
	for _, path := range paths {
		a, err := wad.Open(st.Fs(), path)
		if err != nil {
			return 0, err
		}
		archives = append(archives, a)
	}

	g := guess.New(table, archives, m.cfg.Languages)
	before := len(g.Unknown())
	n := g.Run(guess.Pipeline(kind)...)
	m.logger.Debug("guessing finished",
		zap.String("kind", string(kind)),
		zap.Int("unknown", before),
		zap.Int("resolved", n))
	return n, nil
}
