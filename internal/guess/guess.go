// Package guess resolves unknown content hashes by deriving candidate paths
// from already known ones.
package guess

import (
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/conn-castle/patchmirror/internal/hashes"
	"github.com/conn-castle/patchmirror/internal/wad"
)

// DefaultLangs are the locale codes substituted when no language list is
// configured.
var DefaultLangs = []string{
	"ar_ae", "cs_cz", "de_de", "el_gr", "en_au", "en_gb", "en_ph", "en_sg",
	"en_us", "es_ar", "es_es", "es_mx", "fr_fr", "hu_hu", "id_id", "it_it",
	"ja_jp", "ko_kr", "pl_pl", "pt_br", "ro_ro", "ru_ru", "th_th", "tr_tr",
	"vi_vn", "zh_cn", "zh_my", "zh_tw",
}

// maxNumber bounds the numeric substitution range.
const maxNumber = 100

// Guesser resolves hashes of one naming scheme. It only ever moves hashes
// from the unknown set into the table.
type Guesser struct {
	table    *hashes.Table
	unknown  hashes.Set
	langs    []string
	archives []*wad.Archive
}

// New builds a guesser for the hashes of archives not yet in table.
func New(table *hashes.Table, archives []*wad.Archive, langs []string) *Guesser {
	unknown := make(hashes.Set)
	for _, a := range archives {
		for _, h := range a.Hashes() {
			if !table.Has(h) {
				unknown[h] = struct{}{}
			}
		}
	}
	if len(langs) == 0 {
		langs = DefaultLangs
	}
	lowered := make([]string, 0, len(langs))
	for _, l := range langs {
		lowered = append(lowered, strings.ToLower(l))
	}
	return &Guesser{table: table, unknown: unknown, langs: lowered, archives: archives}
}

// Unknown returns the hashes still unresolved.
func (g *Guesser) Unknown() hashes.Set {
	return g.unknown
}

// Check resolves candidate if its hash is unknown. It reports whether the
// candidate resolved a hash.
func (g *Guesser) Check(candidate string) bool {
	if len(g.unknown) == 0 {
		return false
	}
	h := hashes.Hash(candidate)
	if !g.unknown.Has(h) {
		return false
	}
	g.table.Add(candidate)
	delete(g.unknown, h)
	return true
}

// Pass is one substitution strategy.
type Pass func(g *Guesser)

// Run applies passes in order and returns how many hashes were resolved.
func (g *Guesser) Run(passes ...Pass) int {
	before := len(g.unknown)
	for _, pass := range passes {
		if len(g.unknown) == 0 {
			break
		}
		pass(g)
	}
	return before - len(g.unknown)
}

// Pipeline returns the passes for kind: generic substitutions first, then
// the passes specific to the naming scheme.
func Pipeline(kind hashes.Kind) []Pass {
	passes := []Pass{SubstituteNumbers, SubstituteExtensions, SubstituteLangs}
	switch kind {
	case hashes.KindClient:
		passes = append(passes, SubstitutePlugins)
	case hashes.KindGame:
		passes = append(passes, SubstituteCharacters, ContentPaths)
	}
	return passes
}

var digitRun = regexp.MustCompile(`[0-9]+`)

// SubstituteNumbers replaces each digit run of known paths with every number
// below maxNumber, keeping zero padding.
func SubstituteNumbers(g *Guesser) {
	for _, known := range g.table.Paths() {
		for _, loc := range digitRun.FindAllStringIndex(known, -1) {
			width := loc[1] - loc[0]
			prefix, suffix := known[:loc[0]], known[loc[1]:]
			for n := 0; n < maxNumber; n++ {
				num := strconv.Itoa(n)
				if len(num) < width {
					num = strings.Repeat("0", width-len(num)) + num
				}
				g.Check(prefix + num + suffix)
			}
		}
	}
}

// SubstituteExtensions tries every known extension on every known path.
func SubstituteExtensions(g *Guesser) {
	paths := g.table.Paths()
	exts := make(map[string]struct{})
	for _, p := range paths {
		if ext := path.Ext(p); ext != "" {
			exts[ext] = struct{}{}
		}
	}
	sortedExts := sortedKeys(exts)
	for _, p := range paths {
		ext := path.Ext(p)
		if ext == "" {
			continue
		}
		base := strings.TrimSuffix(p, ext)
		for _, other := range sortedExts {
			if other != ext {
				g.Check(base + other)
			}
		}
	}
}

// SubstituteLangs swaps locale codes found in known paths.
func SubstituteLangs(g *Guesser) {
	for _, p := range g.table.Paths() {
		for _, lang := range g.langs {
			if !strings.Contains(p, lang) {
				continue
			}
			for _, other := range g.langs {
				if other != lang {
					g.Check(strings.ReplaceAll(p, lang, other))
				}
			}
		}
	}
}

// SubstitutePlugins swaps the plugin name of client paths
// ("plugins/<name>/...") with every other known plugin name.
func SubstitutePlugins(g *Guesser) {
	substituteSegment(g, "plugins/")
}

// SubstituteCharacters swaps the character name of game paths
// ("…/characters/<name>/…") with every other known character name.
func SubstituteCharacters(g *Guesser) {
	substituteSegment(g, "characters/")
}

// substituteSegment collects the path segment following marker in known
// paths, then tries every collected value in every such path.
func substituteSegment(g *Guesser, marker string) {
	type split struct{ prefix, name, suffix string }
	var splits []split
	names := make(map[string]struct{})
	for _, p := range g.table.Paths() {
		idx := strings.Index(p, marker)
		if idx < 0 {
			continue
		}
		start := idx + len(marker)
		rest := p[start:]
		end := strings.IndexByte(rest, '/')
		if end <= 0 {
			continue
		}
		name := rest[:end]
		names[name] = struct{}{}
		splits = append(splits, split{prefix: p[:start], name: name, suffix: rest[end:]})
	}
	sortedNames := sortedKeys(names)
	for _, s := range splits {
		for _, name := range sortedNames {
			if name == s.name {
				continue
			}
			// Character files usually repeat the name in the file name.
			g.Check(s.prefix + name + strings.ReplaceAll(s.suffix, s.name, name))
			g.Check(s.prefix + name + s.suffix)
		}
	}
}

var embeddedPath = regexp.MustCompile(`(?i)[a-z0-9_\-]+(?:/[a-z0-9_.\-]+)+\.[a-z0-9]{2,6}`)

// ContentPaths scans entry content for embedded path strings. Only entries
// already resolved to a text-like or bin file are scanned.
func ContentPaths(g *Guesser) {
	for _, a := range g.archives {
		for _, e := range a.Entries {
			if len(g.unknown) == 0 {
				return
			}
			p, ok := g.table.Get(e.Hash)
			if !ok || !scannable(p) {
				continue
			}
			data, err := a.Read(e)
			if err != nil {
				continue
			}
			for _, m := range embeddedPath.FindAll(data, -1) {
				g.Check(string(m))
			}
		}
	}
}

func scannable(p string) bool {
	switch path.Ext(p) {
	case ".bin", ".json", ".js", ".css", ".html", ".txt", ".stringtable", ".preload", ".materials":
		return true
	}
	return false
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
