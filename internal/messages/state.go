package messages

// State messages for versions, routing, ledgers and the update lock.
const (
	VersionInvalidFmt       = "invalid version %q: expected X.Y[.Z] or pbe"
	VersionInvalidBranchFmt = "invalid branch %q: expected live or pbe"

	// RouterStorageUnconfigured is the sentinel text for versions and branches without storage.
	RouterStorageUnconfigured = "no storage configured"
	RouterInvalidRoutes       = "invalid storage routes"
	RouterEmptyLocationFmt    = "storage_paths key %q has an empty location"
	RouterDuplicatePBEFmt     = "storage_paths key %q duplicates the pbe entry"
	RouterOverlapFmt          = "storage_paths keys %q and %q overlap"
	RouterOpenRangeCountFmt   = "exactly one open range (\"X.Y-\") is required, found %d"
	RouterInvalidKeyFmt       = "invalid storage_paths key %q: expected X.Y, X.Y-A.B, X.Y- or pbe"
	RouterEmptyRangeFmt       = "storage_paths key %q is an empty range"

	LedgerLineErrorFmt      = "line %d: %w"
	LedgerReadFailedFmt     = "failed to read ledger: %w"
	LedgerExpectedPair      = "expected channel=version"
	LedgerInvalidVersionFmt = "invalid channel version %q"
	LedgerLoadFmt           = "failed to load ledger %s: %w"
	LedgerInvalidFileFmt    = "invalid ledger %s: %w"
	LedgerSaveFmt           = "failed to save ledger %s: %w"

	// LockHeld is the sentinel text for a lock held by another process.
	LockHeld       = "update lock is held by another process"
	LockOpenFmt    = "failed to open lock file %s: %w"
	LockAcquireFmt = "failed to acquire lock %s: %w"
)
