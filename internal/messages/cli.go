package messages

// CLI messages for user-facing commands.
const (
	// RootUse is the CLI command name.
	RootUse = "patchmirror"
	// RootShort is the short description for the root command.
	RootShort = "Mirror and export game patches"
	RootLong  = `patchmirror keeps a local mirror of the live and PBE patch branches.

It detects new patches, downloads their content into versioned storage,
resolves hashed file names and exports every patch as a plain tree of files.
Scheduled runs are serialized with a lock file; a run that finds the lock
held exits quietly.`
	RootVersionFlag  = "Print version and exit"
	RootConfigFlag   = "Path to the configuration file"
	RootLogLevelFlag = "Log level override (debug, info, warn, error, none)"
	RootVerboseFlag  = "Enable debug logging"

	// VersionCommitFmt formats the commit hash for version display.
	VersionCommitFmt = "commit %s"
	VersionBuildFmt  = "built %s"
	VersionFullFmt   = "%s (%s)"
	VersionTemplate  = "{{.Version}}\n"

	NewPatchUse   = "new-patch <live|pbe>"
	NewPatchShort = "Fetch, resolve and export the current patch of a branch if it is new"

	UpdateUse   = "update [versions...]"
	UpdateShort = "Re-export stored patches"
	UpdateLong  = `Re-export stored patches with the current hash tables.

Without arguments every exported version is refreshed, plus PBE when a PBE
storage is configured. Existing files are kept unless --force is given.`
	UpdateFlagForce = "Overwrite existing export files"

	CheckUse          = "check <live|pbe>"
	CheckShort        = "Report whether a branch has a new patch without changing anything"
	CheckFlagExitCode = "Exit with status 10 when a new patch is available"
	CheckUpToDateFmt  = "%s is up to date (%s)\n"
	CheckNewPatchFmt  = "%s has a new patch (%s)\n"

	StatusUse               = "status"
	StatusShort             = "Show storage routes, ledgers and exported versions"
	StatusHeaderRoute       = "ROUTE"
	StatusHeaderLocation    = "LOCATION"
	StatusHeaderStored      = "STORED"
	StatusHeaderBranch      = "BRANCH"
	StatusHeaderChannel     = "CHANNEL"
	StatusHeaderLastVersion = "LAST VERSION"
	StatusNone              = "none"
	StatusLatestSuffix      = " (latest)"
	StatusExportedFmt       = "exported: %s\n"

	SweepPBEUse   = "sweep-pbe"
	SweepPBEShort = "Remove PBE storage not used by the last stored PBE patch"
)
