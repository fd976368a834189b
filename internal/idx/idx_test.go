package idx

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const surfaceIndex = `1:0:d=2026021312:REFC:entire atmosphere:anl:
2:5000:d=2026021312:RETOP:cloud top:anl:
3:100000:d=2026021312:VIS:surface:anl:
4:200000:d=2026021312:UGRD:10 m above ground:anl:
5:300000:d=2026021312:VGRD:10 m above ground:anl:
6:400000:d=2026021312:TMP:2 m above ground:anl:
7:500000:d=2026021312:TCDC:entire atmosphere:anl:
8:600000:d=2026021312:LCDC:low cloud layer:anl:
9:700000:d=2026021312:MCDC:middle cloud layer:anl:
10:800000:d=2026021312:HCDC:high cloud layer:anl:
11:900000:d=2026021312:HGT:cloud ceiling:anl:
12:1000000:d=2026021312:GUST:surface:anl:
13:1100000:d=2026021312:PRES:surface:anl:
`

func TestParse(t *testing.T) {
	entries, err := Parse(strings.NewReader(surfaceIndex))
	require.NoError(t, err)
	require.Len(t, entries, 13)

	assert.Equal(t, Entry{
		Message:   7,
		StartByte: 500000,
		Date:      "d=2026021312",
		Variable:  "TCDC",
		Level:     "entire atmosphere",
		Forecast:  "anl",
	}, entries[6])
}

func TestParse_SkipsBlankLines(t *testing.T) {
	entries, err := Parse(strings.NewReader("\n1:0:d=1:TMP:2 m above ground:anl:\n\n"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestParse_Malformed(t *testing.T) {
	for name, input := range map[string]string{
		"too few fields": "1:0:d=1:TMP\n",
		"bad message":    "x:0:d=1:TMP:2 m:anl:\n",
		"bad start byte": "1:abc:d=1:TMP:2 m:anl:\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(input))
			assert.Error(t, err)
		})
	}
}

func TestSelect_MatchedSubset(t *testing.T) {
	entries, err := Parse(strings.NewReader(surfaceIndex))
	require.NoError(t, err)

	ranges := Select(entries, []string{"TCDC:entire atmosphere", "VIS:surface", "PRES:surface"})

	want := []ByteRange{
		{Start: 100000, End: 199999},
		{Start: 500000, End: 599999},
		{Start: 1100000, End: 1100000 + FallbackSpan},
	}
	if diff := cmp.Diff(want, ranges); diff != "" {
		t.Errorf("ranges mismatch (-want +got):\n%s", diff)
	}
}

func TestSelect_EndIsNextEntryStartEvenWhenUnmatched(t *testing.T) {
	entries, err := Parse(strings.NewReader(surfaceIndex))
	require.NoError(t, err)

	ranges := Select(entries, []string{"REFC"})
	require.Len(t, ranges, 1)
	assert.Equal(t, int64(4999), ranges[0].End, "RETOP is not wanted but still bounds REFC")
}

func TestSelect_SubstringMatchesLevel(t *testing.T) {
	entries, err := Parse(strings.NewReader(`1:0:d=1:TMP:500 mb:anl:
2:100:d=1:TMP:850 mb:anl:
3:200:d=1:RH:850 mb:anl:
`))
	require.NoError(t, err)

	ranges := Select(entries, []string{"TMP:850 mb"})
	assert.Equal(t, []ByteRange{{Start: 100, End: 199}}, ranges)
}

func TestSelect_NoMatches(t *testing.T) {
	entries, err := Parse(strings.NewReader(surfaceIndex))
	require.NoError(t, err)
	assert.Empty(t, Select(entries, []string{"DPT"}))
}

func TestMerge_Empty(t *testing.T) {
	assert.Empty(t, Merge(nil))
	assert.Empty(t, Merge([]ByteRange{}))
}

func TestMerge_FarApartRangesKept(t *testing.T) {
	in := []ByteRange{
		{Start: 500_000, End: 599_999},
		{Start: 0, End: 99},
	}
	got := Merge(in)
	assert.Equal(t, []ByteRange{{Start: 0, End: 99}, {Start: 500_000, End: 599_999}}, got)
}

func TestMerge_SmallGapJoined(t *testing.T) {
	got := Merge([]ByteRange{
		{Start: 0, End: 999},
		{Start: 999 + MergeGap, End: 200_000},
	})
	assert.Equal(t, []ByteRange{{Start: 0, End: 200_000}}, got)
}

func TestMerge_GapJustOverLimitKept(t *testing.T) {
	got := Merge([]ByteRange{
		{Start: 0, End: 999},
		{Start: 1000 + MergeGap, End: 200_000},
	})
	assert.Len(t, got, 2)
}

func TestMerge_OverlapUsesMaxEnd(t *testing.T) {
	got := Merge([]ByteRange{
		{Start: 0, End: 10_000},
		{Start: 5_000, End: 8_000},
	})
	assert.Equal(t, []ByteRange{{Start: 0, End: 10_000}}, got)
}

func TestMerge_Idempotent(t *testing.T) {
	in := []ByteRange{
		{Start: 100_000, End: 199_999},
		{Start: 500_000, End: 599_999},
		{Start: 600_000, End: 699_999},
		{Start: 2_000_000, End: 2_100_000},
		{Start: 0, End: 4_999},
	}
	once := Merge(in)
	twice := Merge(once)
	assert.Equal(t, once, twice)
}

func TestMerge_DoesNotMutateInput(t *testing.T) {
	in := []ByteRange{{Start: 10, End: 20}, {Start: 0, End: 5}}
	_ = Merge(in)
	assert.Equal(t, []ByteRange{{Start: 10, End: 20}, {Start: 0, End: 5}}, in)
}

func TestRanges_SurfaceVariables(t *testing.T) {
	got, err := Ranges(strings.NewReader(surfaceIndex), []string{
		"TCDC:entire atmosphere",
		"LCDC:low cloud layer",
		"MCDC:middle cloud layer",
		"HCDC:high cloud layer",
		"VIS:surface",
	})
	require.NoError(t, err)
	assert.Equal(t, []ByteRange{
		{Start: 100000, End: 199999},
		{Start: 500000, End: 899999},
	}, got)
}

func TestByteRange_Header(t *testing.T) {
	r := ByteRange{Start: 100, End: 199}
	assert.Equal(t, "bytes=100-199", r.Header())
	assert.Equal(t, int64(100), r.Len())
}
