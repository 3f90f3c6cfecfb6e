package messages

// Upstream messages for patch descriptors, the patcher client and archives.
const (
	PatchVersionRequired      = "patch version is required"
	PatchReleaseRequiredFmt   = "patch %s: release is required"
	PatchElementIncompleteFmt = "patch %s: element %d needs a name, channel, release and manifest"
	PatchElementDuplicateFmt  = "patch %s: duplicate element %q"
	PatchUnsafeIdentifierFmt  = "patch %s: %s %q is not a valid path element"
	PatchDecodeFmt            = "failed to decode patch: %w"
	PatchEncodeFmt            = "failed to encode patch: %w"

	// PatcherNotFound is the sentinel text for missing upstream resources.
	PatcherNotFound            = "not found upstream"
	PatcherSnapshotVersionFmt  = "invalid %s snapshot version: %v"
	PatcherDecodeSnapshotFmt   = "failed to decode snapshot %s: %w"
	PatcherCreateRequestFmt    = "failed to create request %s: %w"
	PatcherDownloadFailedFmt   = "failed to download %s: %w"
	PatcherUnexpectedStatusFmt = "unexpected response from %s: %s"
	PatcherTooLargeFmt         = "response from %s exceeds limit: %d > %d bytes"
	PatcherRetryExhausted      = "retries exhausted"

	WadRedirection           = "entry is a redirection"
	WadBadMagic              = "bad magic"
	WadOpenFmt               = "failed to open archive %s: %w"
	WadInvalidFmt            = "invalid archive %s: %w"
	WadUnsupportedVersionFmt = "unsupported archive version %d.%d"
	WadTooManyEntriesFmt     = "entry count %d exceeds limit"
	WadClosedFmt             = "archive %s is closed"
	WadReadEntryFmt          = "failed to read entry %016x from %s: %w"
	WadSizeMismatchFmt       = "entry %016x: decoded %d bytes, expected %d"
	WadUnknownTypeFmt        = "unknown entry type %d"

	HashesInvalidHashFmt = "invalid hash %q"
	HashesLoadFmt        = "failed to load hashes %s: %w"
	HashesLineErrorFmt   = "%s: malformed line %d"
	HashesSaveFmt        = "failed to save hashes %s: %w"
	HashesSetMissingFmt  = "hash set %s: %w"
)
