package version

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "14.1", want: "14.1"},
		{in: "9.15", want: "9.15"},
		{in: "10.2.3", want: "10.2.3"},
		{in: "10.2.0", want: "10.2"},
		{in: " 4.20 ", want: "4.20"},
		{in: "pbe", want: "pbe"},
		{in: "PBE", want: "pbe"},
		{in: "main", want: "pbe"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.String())

			again, err := Parse(v.String())
			require.NoError(t, err)
			assert.True(t, again.Equal(v))
		})
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	for _, in := range []string{"", "14", "v14.1", "14.1-rc1", "14.x", "live", "1.2.3.4"} {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in)
			require.Error(t, err)
		})
	}
}

func TestCompare(t *testing.T) {
	assert.True(t, MustParse("9.9").Less(MustParse("9.10")))
	assert.True(t, MustParse("9.2").Less(MustParse("9.15")))
	assert.True(t, MustParse("9.24").Less(MustParse("10.1")))
	assert.True(t, MustParse("10.1").Less(MustParse("10.1.1")))
	assert.True(t, MustParse("99.99").Less(PBE))
	assert.True(t, PBE.Equal(MustParse("main")))
	assert.Equal(t, 0, MustParse("9.2").Compare(MustParse("9.2.0")))
	assert.True(t, Version{}.Less(MustParse("0.1")))
	assert.True(t, Version{}.IsZero())
	assert.False(t, PBE.IsZero())
}

func TestSort(t *testing.T) {
	versions := []Version{PBE, MustParse("10.1"), MustParse("9.10"), MustParse("9.2")}
	Sort(versions)
	got := make([]string, 0, len(versions))
	for _, v := range versions {
		got = append(got, v.String())
	}
	assert.Equal(t, []string{"9.2", "9.10", "10.1", "pbe"}, got)
}

func TestTextMarshaling(t *testing.T) {
	type doc struct {
		Version Version `json:"version"`
	}
	data, err := json.Marshal(doc{Version: MustParse("14.3")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":"14.3"}`, string(data))

	var out doc
	require.NoError(t, json.Unmarshal([]byte(`{"version":"main"}`), &out))
	assert.True(t, out.Version.IsPBE())

	require.Error(t, json.Unmarshal([]byte(`{"version":"nope"}`), &out))
}

func TestParseBranch(t *testing.T) {
	b, err := ParseBranch("Live")
	require.NoError(t, err)
	assert.Equal(t, BranchLive, b)

	b, err = ParseBranch("pbe")
	require.NoError(t, err)
	assert.Equal(t, BranchPBE, b)

	_, err = ParseBranch("beta")
	require.Error(t, err)
}
