package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/aymanbagabas/go-udiff"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/conn-castle/patchmirror/internal/ledger"
	"github.com/conn-castle/patchmirror/internal/messages"
	"github.com/conn-castle/patchmirror/internal/mirror"
	"github.com/conn-castle/patchmirror/internal/terminal"
	"github.com/conn-castle/patchmirror/internal/version"
)

// checkNewPatchExitCode is returned by check --exit-code when a new patch is
// available.
const checkNewPatchExitCode = 10

func newNewPatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   messages.NewPatchUse,
		Short: messages.NewPatchShort,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			branch, err := version.ParseBranch(args[0])
			if err != nil {
				return err
			}
			s, err := opts.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.close()
			return s.mirror.NewPatch(cmd.Context(), branch)
		},
	}
}

func newUpdateCmd(opts *rootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   messages.UpdateUse,
		Short: messages.UpdateShort,
		Long:  messages.UpdateLong,
		RunE: func(cmd *cobra.Command, args []string) error {
			versions := make([]version.Version, 0, len(args))
			for _, arg := range args {
				v, err := version.Parse(arg)
				if err != nil {
					return err
				}
				versions = append(versions, v)
			}
			s, err := opts.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.close()
			return s.mirror.Update(cmd.Context(), force, versions)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, messages.UpdateFlagForce)
	return cmd
}

func newCheckCmd(opts *rootOptions) *cobra.Command {
	var exitCode bool
	cmd := &cobra.Command{
		Use:   messages.CheckUse,
		Short: messages.CheckShort,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			branch, err := version.ParseBranch(args[0])
			if err != nil {
				return err
			}
			s, err := opts.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.close()
			probe, err := s.mirror.Probe(cmd.Context(), branch)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !probe.New() {
				_, _ = fmt.Fprintf(out, messages.CheckUpToDateFmt, branch, probe.Patch.Version)
				return nil
			}
			_, _ = fmt.Fprintf(out, messages.CheckNewPatchFmt, branch, probe.Patch.Version)
			writeLedgerDiff(out, s.cfg.Paths().Ledger(branch), probe)
			if exitCode {
				return &SilentExitError{Code: checkNewPatchExitCode}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&exitCode, "exit-code", false, messages.CheckFlagExitCode)
	return cmd
}

// writeLedgerDiff prints the ledger change a new-patch run would make.
func writeLedgerDiff(out io.Writer, path string, probe *mirror.Probe) {
	diff := udiff.Unified(path, path, ledger.Format(probe.Recorded), ledger.Format(probe.Next()))
	_, _ = fmt.Fprint(out, diff)
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   messages.StatusUse,
		Short: messages.StatusShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.close()
			status, err := s.mirror.Status()
			if err != nil {
				return err
			}
			writeStatus(cmd.OutOrStdout(), s, status)
			return nil
		},
	}
}

func writeStatus(out io.Writer, s *session, status *mirror.Status) {
	highlight := color.New(color.FgGreen, color.Bold)
	missing := color.New(color.FgYellow)
	if !terminal.IsTerminal(out) {
		highlight.DisableColor()
		missing.DisableColor()
	}

	routes := table.NewWriter()
	routes.SetOutputMirror(out)
	routes.AppendHeader(table.Row{messages.StatusHeaderRoute, messages.StatusHeaderLocation, messages.StatusHeaderStored})
	r := s.cfg.Router()
	for _, route := range r.Routes() {
		routes.AppendRow(table.Row{route.Key, s.cfg.Resolve(route.Location), storedCount(s, route.Lower)})
	}
	if location, ok := r.Resolve(version.PBE); ok {
		routes.AppendRow(table.Row{string(version.BranchPBE), s.cfg.Resolve(location), storedCount(s, version.PBE)})
	}
	routes.Render()
	_, _ = fmt.Fprintln(out)

	ledgers := table.NewWriter()
	ledgers.SetOutputMirror(out)
	ledgers.AppendHeader(table.Row{messages.StatusHeaderBranch, messages.StatusHeaderChannel, messages.StatusHeaderLastVersion})
	for _, branch := range []version.Branch{version.BranchLive, version.BranchPBE} {
		lv := status.Ledgers[branch]
		channels := lv.Channels()
		if len(channels) == 0 {
			ledgers.AppendRow(table.Row{string(branch), missing.Sprint(messages.StatusNone), ""})
			continue
		}
		for _, channel := range channels {
			ledgers.AppendRow(table.Row{string(branch), channel, lv.Get(channel)})
		}
		ledgers.AppendSeparator()
	}
	ledgers.Render()
	_, _ = fmt.Fprintln(out)

	exported := make([]string, 0, len(status.Exported))
	for _, v := range status.Exported {
		name := v.String()
		if name == status.Latest {
			name = highlight.Sprint(name + messages.StatusLatestSuffix)
		}
		exported = append(exported, name)
	}
	if len(exported) == 0 {
		exported = append(exported, missing.Sprint(messages.StatusNone))
	}
	_, _ = fmt.Fprintf(out, messages.StatusExportedFmt, strings.Join(exported, ", "))
}

// storedCount returns the number of patches stored where v is routed, or -1
// when the storage cannot be listed.
func storedCount(s *session, v version.Version) int {
	st, ok := s.mirror.Storages().ForVersion(v)
	if !ok {
		return -1
	}
	versions, err := st.Versions()
	if err != nil {
		return -1
	}
	return len(versions)
}

func newSweepPBECmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   messages.SweepPBEUse,
		Short: messages.SweepPBEShort,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.close()
			return s.mirror.SweepPBE(cmd.Context())
		},
	}
}
