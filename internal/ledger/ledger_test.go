package ledger

import (
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	lv, err := Parse("# live ledger\nclient=5\n\n champion = 12 \n")
	require.NoError(t, err)
	assert.Equal(t, LastVersions{"client": 5, "champion": 12}, lv)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "missing separator", content: "client\n", want: "line 1"},
		{name: "empty channel", content: "client=1\n=4\n", want: "line 2"},
		{name: "non numeric", content: "client=abc\n", want: "abc"},
		{name: "negative", content: "client=-1\n", want: "-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.content)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFormatIsSortedAndParsable(t *testing.T) {
	lv := LastVersions{"game": 3, "client": 7}
	out := Format(lv)
	assert.Equal(t, "client=7\ngame=3\n", out)

	back, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, lv, back)
}

func TestAdvancedBy(t *testing.T) {
	recorded := LastVersions{"champion": 5, "client": 5}

	assert.True(t, recorded.AdvancedBy(LastVersions{"champion": 5, "client": 6}))
	assert.False(t, recorded.AdvancedBy(LastVersions{"champion": 5, "client": 5}))
	assert.False(t, recorded.AdvancedBy(LastVersions{"champion": 4, "client": 5}))
	assert.True(t, recorded.AdvancedBy(LastVersions{"game": 1}), "missing channels default to zero")
	assert.False(t, recorded.AdvancedBy(LastVersions{"game": 0}))
	assert.True(t, LastVersions{}.AdvancedBy(LastVersions{"client": 1}))
}

func TestMergeNeverDecreases(t *testing.T) {
	merged := LastVersions{"client": 5, "game": 9}.Merge(LastVersions{"client": 6, "game": 2, "lcu": 1})
	assert.Equal(t, LastVersions{"client": 6, "game": 9, "lcu": 1}, merged)
}

func TestLoadSave(t *testing.T) {
	fs := afero.NewMemMapFs()

	lv, err := Load(fs, "last-versions.live.txt")
	require.NoError(t, err)
	assert.Empty(t, lv)

	require.NoError(t, Save(fs, "last-versions.live.txt", LastVersions{"client": 2}))
	lv, err = Load(fs, "last-versions.live.txt")
	require.NoError(t, err)
	assert.Equal(t, LastVersions{"client": 2}, lv)

	require.NoError(t, afero.WriteFile(fs, "broken.txt", []byte("oops"), 0o644))
	_, err = Load(fs, "broken.txt")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "broken.txt"))
}
