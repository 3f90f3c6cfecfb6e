// Package mirror is the patch update orchestrator. It decides whether a
// branch has a new patch, downloads it, resolves hashes, re-exports versions
// that became nameable, exports the new patch and prunes PBE storage.
package mirror

import (
	"errors"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/conn-castle/patchmirror/internal/config"
	"github.com/conn-castle/patchmirror/internal/export"
	"github.com/conn-castle/patchmirror/internal/hashes"
	"github.com/conn-castle/patchmirror/internal/ledger"
	"github.com/conn-castle/patchmirror/internal/lock"
	"github.com/conn-castle/patchmirror/internal/messages"
	"github.com/conn-castle/patchmirror/internal/patcher"
	"github.com/conn-castle/patchmirror/internal/version"
)

var (
	// ErrStructureMismatch is returned when a fetched patch lacks the client
	// or game element.
	ErrStructureMismatch = errors.New(messages.MirrorStructureMismatch)
	// ErrNoPredecessor is returned when a version that is not a baseline has
	// no stored predecessor to export against.
	ErrNoPredecessor = errors.New(messages.MirrorNoPredecessor)
	// ErrNoUpstream is returned by operations that need the upstream client
	// when none was configured.
	ErrNoUpstream = errors.New(messages.MirrorNoUpstream)
)

// Mirror orchestrates one run. It is not safe for concurrent use; runs are
// serialized across processes with the update lock.
type Mirror struct {
	fs       afero.Fs
	cfg      *config.Config
	paths    config.Paths
	client   patcher.Client
	logger   *zap.Logger
	storages *StorageCache

	tables   *hashes.Tables
	exporter *export.Exporter

	acquire func(path string) (*lock.FileLock, error)
}

// Option configures a Mirror.
type Option func(*Mirror)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Mirror) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClient sets the upstream client.
func WithClient(client patcher.Client) Option {
	return func(m *Mirror) { m.client = client }
}

// New returns a mirror working on fs with cfg.
func New(fs afero.Fs, cfg *config.Config, opts ...Option) *Mirror {
	m := &Mirror{
		fs:      fs,
		cfg:     cfg,
		paths:   cfg.Paths(),
		logger:  zap.NewNop(),
		acquire: lock.TryAcquire,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.storages = NewStorageCache(fs, cfg.Router(), cfg.Resolve)
	return m
}

// Storages returns the storage cache of the run.
func (m *Mirror) Storages() *StorageCache {
	return m.storages
}

// Ledger loads the ledger of branch.
func (m *Mirror) Ledger(branch version.Branch) (ledger.LastVersions, error) {
	return ledger.Load(m.fs, m.paths.Ledger(branch))
}

// hashTables loads the known-hash tables once per run. Guessing and export
// share the same tables so names found during the run are used right away.
func (m *Mirror) hashTables() (*hashes.Tables, error) {
	if m.tables != nil {
		return m.tables, nil
	}
	tables, err := hashes.LoadTables(m.fs, m.paths.HashesDir)
	if err != nil {
		return nil, err
	}
	m.tables = tables
	return tables, nil
}

func (m *Mirror) exporterFor() (*export.Exporter, error) {
	if m.exporter != nil {
		return m.exporter, nil
	}
	tables, err := m.hashTables()
	if err != nil {
		return nil, err
	}
	m.exporter = export.New(m.fs, tables, m.logger)
	return m.exporter, nil
}

// locked runs fn under the update lock. Contention is a benign skip: fn is
// not run and nil is returned.
func (m *Mirror) locked(fn func() error) error {
	held, err := m.acquire(m.paths.LockFile)
	if errors.Is(err, lock.ErrLocked) {
		m.logger.Info("update lock held by another run, skipping", zap.String("lock", m.paths.LockFile))
		return nil
	}
	if err != nil {
		return err
	}
	defer func() { _ = held.Release() }()
	return fn()
}
