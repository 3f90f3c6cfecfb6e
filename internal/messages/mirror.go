package messages

// Mirror messages for the update orchestrator.
const (
	MirrorStructureMismatch = "patch structure mismatch"
	MirrorNoPredecessor     = "no predecessor patch"
	MirrorNoUpstream        = "no upstream configured"

	MirrorVersionUnroutedFmt = "version %s"
	MirrorProbeFmt           = "failed to probe %s: %w"
	MirrorDownloadFmt        = "failed to download patch %s: %w"
	MirrorMissingElementFmt  = "patch %s has no %s element"
	MirrorListExportsFmt     = "failed to list exports in %s: %w"
	MirrorNoPredecessorFmt   = "patch %s is not a storage baseline and no earlier patch is stored"
	MirrorExportFmt          = "failed to export patch %s: %w"
	MirrorUpdateFmt          = "failed to update %s: %w"
	MirrorSweepFmt           = "failed to load the kept PBE patch: %w"
)
