package messages

// Storage messages for patch storage, atomic writes and exports.
const (
	// StorageNotFound is the sentinel text for missing stored objects.
	StorageNotFound            = "not found in storage"
	StorageSavePatchFmt        = "failed to store patch %s: %w"
	StorageLoadPatchFmt        = "failed to load patch %s: %w"
	StorageNoPreviousFmt       = "no stored patch before %s"
	StorageSaveElementFmt      = "failed to record element %s: %w"
	StorageLoadElementFmt      = "failed to load element record %s: %w"
	StorageReadManifestFmt     = "failed to read manifest %s: %w"
	StorageFetchManifestFmt    = "failed to fetch manifest of element %s: %w"
	StorageFetchBundleFmt      = "failed to fetch bundle %016X: %w"
	StorageExtractFmt          = "failed to extract %s: %w"
	StorageSizeMismatchFmt     = "size mismatch: got %d bytes, expected %d"
	StorageChecksumMismatchFmt = "checksum mismatch in bundle %s at offset %d"
	StorageListFmt             = "failed to list %s: %w"
	StorageRemoveFmt           = "failed to remove %s: %w"
	StorageManifestDecodeFmt   = "failed to decode manifest: %w"
	StorageManifestBadNameFmt  = "manifest %s: invalid file name %q"
	StorageBadBundleIDFmt      = "invalid bundle id %q"

	FsutilCreateDirFmt  = "failed to create directory %s: %w"
	FsutilCreateTempFmt = "failed to create temp file for %s: %w"
	FsutilWriteTempFmt  = "failed to write temp file for %s: %w"
	FsutilSyncTempFmt   = "failed to sync temp file for %s: %w"
	FsutilCloseTempFmt  = "failed to close temp file for %s: %w"
	FsutilChmodFmt      = "failed to set permissions for %s: %w"
	FsutilRenameFmt     = "failed to replace %s: %w"

	ExportElementFmt = "failed to export element %s of %s: %w"
	ExportWriteFmt   = "failed to write %s: %w"
	ExportLinkFmt    = "failed to link %s to %s: %w"
	ExportCopyFmt    = "failed to copy %s to %s: %w"
	ExportLatestFmt  = "failed to point latest at %s: %w"
	ExportNoSymlinks = "filesystem does not support symlinks"
)
