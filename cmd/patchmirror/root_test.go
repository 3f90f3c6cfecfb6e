package main

// NOTE: Tests in this file replace the newClient seam. Do not use
// t.Parallel() at the top level.

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/conn-castle/patchmirror/internal/config"
	"github.com/conn-castle/patchmirror/internal/ledger"
	"github.com/conn-castle/patchmirror/internal/patch"
	"github.com/conn-castle/patchmirror/internal/patcher"
	"github.com/conn-castle/patchmirror/internal/router"
	"github.com/conn-castle/patchmirror/internal/testutil"
	"github.com/conn-castle/patchmirror/internal/version"
)

type cliEnv struct {
	t      *testing.T
	base   string
	config string
	up     *testutil.Upstream
}

// newCLIEnv writes a config file under a temporary base directory and
// routes the upstream client to an in-memory fixture.
func newCLIEnv(t *testing.T, routes string) *cliEnv {
	t.Helper()
	base := t.TempDir()
	path := filepath.Join(base, config.DefaultFile)
	data := fmt.Sprintf("base_path = %q\nlog_level = \"none\"\n\n[storage_paths]\n%s\n", base, routes)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	up := testutil.NewUpstream()
	orig := newClient
	newClient = func(*config.Config) patcher.Client { return up }
	t.Cleanup(func() { newClient = orig })
	return &cliEnv{t: t, base: base, config: path, up: up}
}

func (e *cliEnv) run(args ...string) (string, error) {
	e.t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(append([]string{"--config", e.config}, args...))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.Execute()
	return out.String(), err
}

func (e *cliEnv) publish(branch version.Branch, v string, clientRel, gameRel int) {
	e.t.Helper()
	ce := testutil.Element(patch.ElementClient, "client", clientRel)
	ge := testutil.Element(patch.ElementGame, "champion", gameRel)
	e.up.Publish(e.t, ce.Manifest, uint64(clientRel*2+1), []testutil.File{
		{Name: "Plugins/assets.wad", Data: testutil.WAD(e.t, map[string][]byte{"plugins/a.js": []byte("a")})},
	})
	e.up.Publish(e.t, ge.Manifest, uint64(gameRel*2+2), []testutil.File{
		{Name: "DATA/FINAL/Annie.wad.client", Data: testutil.WAD(e.t, map[string][]byte{"data/annie.bin": []byte("annie")})},
	})
	e.up.SetCurrent(branch, &patch.Patch{
		Version:  version.MustParse(v),
		Release:  fmt.Sprintf("r%d-%d", clientRel, gameRel),
		Elements: []patch.Element{ce, ge},
	})
}

func TestRootVersionFlag(t *testing.T) {
	cmd := newRootCmd()
	cmd.Version = "v1.2.3"
	cmd.SetVersionTemplate("{{.Version}}\n")
	cmd.SetArgs([]string{"--version"})

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute error: %v", err)
	}
	if strings.TrimSpace(out.String()) != "v1.2.3" {
		t.Fatalf("unexpected version output: %q", out.String())
	}
}

func TestRootHelp(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{})

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute error: %v", err)
	}
	for _, want := range []string{"new-patch", "update", "check", "status", "sweep-pbe"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("expected %q in help output, got %q", want, out.String())
		}
	}
}

func TestMissingConfig(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "absent.toml"), "status"})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)

	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "missing config file") {
		t.Fatalf("expected missing config error, got %v", err)
	}
}

func TestNewPatchRejectsUnknownBranch(t *testing.T) {
	e := newCLIEnv(t, `"14.1-" = "live"`)
	if _, err := e.run("new-patch", "beta"); err == nil {
		t.Fatalf("expected error for unknown branch")
	}
}

func TestNewPatchRequiresBranch(t *testing.T) {
	e := newCLIEnv(t, `"14.1-" = "live"`)
	if _, err := e.run("new-patch"); err == nil {
		t.Fatalf("expected error without branch")
	}
}

func TestNewPatchPBEUnconfigured(t *testing.T) {
	e := newCLIEnv(t, `"14.1-" = "live"`)
	_, err := e.run("new-patch", "pbe")
	if !errors.Is(err, router.ErrStorageUnconfigured) {
		t.Fatalf("expected unconfigured storage error, got %v", err)
	}
}

func TestNewPatchExportsAndRecords(t *testing.T) {
	e := newCLIEnv(t, `"14.1-" = "live"`)
	e.publish(version.BranchLive, "14.1", 3, 4)

	if _, err := e.run("new-patch", "live"); err != nil {
		t.Fatalf("new-patch: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(e.base, "last-versions.live.txt"))
	if err != nil {
		t.Fatalf("read ledger: %v", err)
	}
	lv, err := ledger.Parse(string(data))
	if err != nil {
		t.Fatalf("parse ledger: %v", err)
	}
	if lv.Get("champion") != 4 || lv.Get("client") != 3 {
		t.Fatalf("unexpected ledger %v", lv)
	}
	target, err := os.Readlink(filepath.Join(e.base, "export", "latest"))
	if err != nil || target != "14.1" {
		t.Fatalf("expected latest -> 14.1, got %q (%v)", target, err)
	}
}

func TestCheckReportsLedgerDiff(t *testing.T) {
	e := newCLIEnv(t, `"14.1-" = "live"`)
	e.publish(version.BranchLive, "14.1", 3, 4)

	out, err := e.run("check", "live", "--exit-code")
	var silent *SilentExitError
	if !errors.As(err, &silent) || silent.Code != checkNewPatchExitCode {
		t.Fatalf("expected silent exit %d, got %v", checkNewPatchExitCode, err)
	}
	if !strings.Contains(out, "+client=3") {
		t.Fatalf("expected ledger diff, got %q", out)
	}
	if _, err := os.Stat(filepath.Join(e.base, "last-versions.live.txt")); !os.IsNotExist(err) {
		t.Fatalf("check must not write the ledger: %v", err)
	}

	if _, err := e.run("new-patch", "live"); err != nil {
		t.Fatalf("new-patch: %v", err)
	}
	out, err = e.run("check", "live", "--exit-code")
	if err != nil {
		t.Fatalf("check after update: %v", err)
	}
	if !strings.Contains(out, "up to date") {
		t.Fatalf("expected up to date output, got %q", out)
	}
}

func TestUpdateRejectsBadVersion(t *testing.T) {
	e := newCLIEnv(t, `"14.1-" = "live"`)
	if _, err := e.run("update", "not-a-version"); err == nil {
		t.Fatalf("expected error for invalid version")
	}
}

func TestUpdateForceRewritesExport(t *testing.T) {
	e := newCLIEnv(t, `"14.1-" = "live"`)
	e.publish(version.BranchLive, "14.1", 3, 4)
	if _, err := e.run("new-patch", "live"); err != nil {
		t.Fatalf("new-patch: %v", err)
	}

	unknown := filepath.Join(e.base, "export", "14.1", "unknown-hashes.txt")
	if err := os.Remove(unknown); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := e.run("update", "--force", "14.1"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := os.Stat(unknown); err != nil {
		t.Fatalf("expected export to be rewritten: %v", err)
	}
}

func TestStatusListsState(t *testing.T) {
	e := newCLIEnv(t, "pbe = \"pbe\"\n\"14.1-\" = \"live\"")
	e.publish(version.BranchLive, "14.1", 3, 4)
	if _, err := e.run("new-patch", "live"); err != nil {
		t.Fatalf("new-patch: %v", err)
	}

	out, err := e.run("status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"14.1-", "pbe", "champion", "14.1 (latest)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in status output, got %q", want, out)
		}
	}
}

func TestSweepPBEWithoutStoredPatch(t *testing.T) {
	e := newCLIEnv(t, "pbe = \"pbe\"\n\"14.1-\" = \"live\"")
	if _, err := e.run("sweep-pbe"); err == nil {
		t.Fatalf("expected error without a stored PBE patch")
	}
}
