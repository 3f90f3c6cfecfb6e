// Package ledger persists the last processed release version of every
// channel, one file per branch.
package ledger

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/conn-castle/patchmirror/internal/fsutil"
	"github.com/conn-castle/patchmirror/internal/messages"
)

// LastVersions maps a channel name to its release sequence number.
type LastVersions map[string]int

// Get returns the recorded version of channel, or zero when absent.
func (lv LastVersions) Get(channel string) int {
	return lv[channel]
}

// AdvancedBy reports whether any channel of probed is strictly greater than
// the recorded version. Missing channels count as zero.
func (lv LastVersions) AdvancedBy(probed LastVersions) bool {
	for channel, v := range probed {
		if v > lv.Get(channel) {
			return true
		}
	}
	return false
}

// Merge returns a new ledger holding, per channel, the maximum of lv and
// next. Recorded versions therefore never decrease.
func (lv LastVersions) Merge(next LastVersions) LastVersions {
	out := make(LastVersions, len(lv)+len(next))
	for channel, v := range lv {
		out[channel] = v
	}
	for channel, v := range next {
		if v > out[channel] {
			out[channel] = v
		}
	}
	return out
}

// Channels returns the channel names in sorted order.
func (lv LastVersions) Channels() []string {
	channels := make([]string, 0, len(lv))
	for channel := range lv {
		channels = append(channels, channel)
	}
	sort.Strings(channels)
	return channels
}

// Parse reads ledger content: one channel=version pair per line. Blank
// lines and lines starting with # are ignored.
func Parse(content string) (LastVersions, error) {
	lv := make(LastVersions)
	scanner := bufio.NewScanner(strings.NewReader(content))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		channel, v, ok, err := parseLine(scanner.Text())
		if err != nil {
			return nil, fmt.Errorf(messages.LedgerLineErrorFmt, lineNo, err)
		}
		if !ok {
			continue
		}
		lv[channel] = v
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf(messages.LedgerReadFailedFmt, err)
	}
	return lv, nil
}

func parseLine(line string) (string, int, bool, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return "", 0, false, nil
	}
	channel, raw, found := strings.Cut(trimmed, "=")
	channel = strings.TrimSpace(channel)
	if !found || channel == "" {
		return "", 0, false, fmt.Errorf(messages.LedgerExpectedPair)
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v < 0 {
		return "", 0, false, fmt.Errorf(messages.LedgerInvalidVersionFmt, strings.TrimSpace(raw))
	}
	return channel, v, true, nil
}

// Format renders lv in its on-disk form, channels sorted.
func Format(lv LastVersions) string {
	var b strings.Builder
	for _, channel := range lv.Channels() {
		fmt.Fprintf(&b, "%s=%d\n", channel, lv[channel])
	}
	return b.String()
}

// Load reads the ledger at path. A missing file is an empty ledger.
func Load(fs afero.Fs, path string) (LastVersions, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return LastVersions{}, nil
		}
		return nil, fmt.Errorf(messages.LedgerLoadFmt, path, err)
	}
	lv, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf(messages.LedgerInvalidFileFmt, path, err)
	}
	return lv, nil
}

// Save atomically replaces the ledger at path.
func Save(fs afero.Fs, path string, lv LastVersions) error {
	if err := fsutil.WriteFileAtomic(fs, path, []byte(Format(lv)), 0o644); err != nil {
		return fmt.Errorf(messages.LedgerSaveFmt, path, err)
	}
	return nil
}
