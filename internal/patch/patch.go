// Package patch describes upstream release snapshots and their elements.
package patch

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/conn-castle/patchmirror/internal/ledger"
	"github.com/conn-castle/patchmirror/internal/messages"
	"github.com/conn-castle/patchmirror/internal/version"
)

// Element names the orchestrator relies on.
const (
	ElementClient = "client"
	ElementGame   = "game"
)

// Element is a named constituent of a patch bound to one channel's release.
type Element struct {
	Name    string `json:"name"`
	Channel string `json:"channel"`
	// Release is the channel's release sequence number.
	Release int `json:"release"`
	// Manifest is the content address of the element's manifest.
	Manifest    string `json:"manifest"`
	ManifestURL string `json:"manifest_url,omitempty"`
}

// Patch is an upstream release snapshot for one version.
type Patch struct {
	Version version.Version `json:"version"`
	// Release identifies the upstream release backing every element.
	Release  string    `json:"release"`
	Elements []Element `json:"elements"`

	// Stored is set for patches retrieved from storage; fresh probes are
	// not persisted until downloaded.
	Stored bool `json:"-"`
}

// Element returns the element called name.
func (p *Patch) Element(name string) (Element, bool) {
	for _, e := range p.Elements {
		if e.Name == name {
			return e, true
		}
	}
	return Element{}, false
}

// ChannelVersions extracts the {channel: release} map of the patch. When
// several elements share a channel the highest release wins.
func (p *Patch) ChannelVersions() ledger.LastVersions {
	out := make(ledger.LastVersions, len(p.Elements))
	for _, e := range p.Elements {
		if cur, ok := out[e.Channel]; !ok || e.Release > cur {
			out[e.Channel] = e.Release
		}
	}
	return out
}

// Manifests returns the distinct manifest IDs of the patch, sorted.
func (p *Patch) Manifests() []string {
	seen := make(map[string]struct{}, len(p.Elements))
	out := make([]string, 0, len(p.Elements))
	for _, e := range p.Elements {
		if _, ok := seen[e.Manifest]; ok || e.Manifest == "" {
			continue
		}
		seen[e.Manifest] = struct{}{}
		out = append(out, e.Manifest)
	}
	sort.Strings(out)
	return out
}

func (p *Patch) String() string {
	return fmt.Sprintf("%s (release %s)", p.Version, p.Release)
}

// Validate checks the fields every stored or fetched patch must carry.
func (p *Patch) Validate() error {
	if p.Version.IsZero() {
		return fmt.Errorf(messages.PatchVersionRequired)
	}
	if p.Release == "" {
		return fmt.Errorf(messages.PatchReleaseRequiredFmt, p.Version)
	}
	if !safeSegment(p.Release) {
		return fmt.Errorf(messages.PatchUnsafeIdentifierFmt, p.Version, "release", p.Release)
	}
	names := make(map[string]struct{}, len(p.Elements))
	for i, e := range p.Elements {
		if e.Name == "" || e.Channel == "" || e.Manifest == "" {
			return fmt.Errorf(messages.PatchElementIncompleteFmt, p.Version, i)
		}
		for _, field := range []struct{ name, value string }{
			{"element name", e.Name},
			{"channel", e.Channel},
			{"manifest", e.Manifest},
		} {
			if !safeSegment(field.value) {
				return fmt.Errorf(messages.PatchUnsafeIdentifierFmt, p.Version, field.name, field.value)
			}
		}
		if _, ok := names[e.Name]; ok {
			return fmt.Errorf(messages.PatchElementDuplicateFmt, p.Version, e.Name)
		}
		names[e.Name] = struct{}{}
	}
	return nil
}

// safeSegment reports whether an upstream identifier can be used as a single
// path element.
func safeSegment(s string) bool {
	return s != "." && s != ".." && !strings.ContainsAny(s, `/\`) && !strings.ContainsRune(s, 0)
}

// Decode reads a JSON patch descriptor.
func Decode(data []byte) (*Patch, error) {
	var p Patch
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf(messages.PatchDecodeFmt, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Encode renders a JSON patch descriptor.
func Encode(p *Patch) ([]byte, error) {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf(messages.PatchEncodeFmt, err)
	}
	return append(data, '\n'), nil
}
