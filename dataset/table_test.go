package dataset

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func salesTable(t *testing.T) *Table {
	t.Helper()
	tbl, err := New([]Column{
		{Name: "date", Type: Timestamp},
		{Name: "sales", Type: Number},
		{Name: "region", Type: Text},
	}, [][]any{
		{time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 100, "north"},
		{time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), 150, "south"},
		{time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), 200, "north"},
	})
	require.NoError(t, err)
	return tbl
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, nil)
	assert.ErrorIs(t, err, ErrEmptySchema)

	_, err = New([]Column{{Name: "a", Type: Number}, {Name: "a", Type: Text}}, nil)
	assert.Error(t, err)

	_, err = New([]Column{{Name: "a", Type: Number}}, [][]any{{1, 2}})
	assert.Error(t, err)

	_, err = New([]Column{{Name: "a", Type: "blob"}}, nil)
	assert.Error(t, err)
}

func TestNew_NormalizesValues(t *testing.T) {
	tbl := MustNew([]Column{{Name: "n", Type: Number}}, [][]any{{int64(3)}, {float32(1.5)}})
	assert.Equal(t, 3.0, tbl.Value(0, 0))
	assert.Equal(t, 1.5, tbl.Value(1, 0))
}

func TestFingerprint_ContentAddressed(t *testing.T) {
	a := salesTable(t)
	b := salesTable(t)

	assert.NotSame(t, a, b)
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.True(t, a.Equal(b))

	c, err := a.WithColumn("sales", Number, []any{1.0, 2.0, 3.0})
	require.NoError(t, err)
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestFingerprint_DistinguishesCells(t *testing.T) {
	cols := []Column{{Name: "v", Type: Number}, {Name: "name", Type: Text}}
	tests := []struct {
		name string
		a, b [][]any
	}{
		{"infinite rows", [][]any{{math.Inf(1), "ann"}}, [][]any{{math.Inf(1), "bob"}}},
		{"signed infinity", [][]any{{math.Inf(1), "ann"}}, [][]any{{math.Inf(-1), "ann"}}},
		{"missing vs zero", [][]any{{nil, "ann"}}, [][]any{{0.0, "ann"}}},
		{"cell boundaries", [][]any{{1.0, "a"}, {2.0, "b"}}, [][]any{{1.0, "a"}, {2.0, "bb"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := New(cols, tt.a)
			require.NoError(t, err)
			b, err := New(cols, tt.b)
			require.NoError(t, err)
			assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
			assert.False(t, a.Equal(b))
		})
	}

	inf, err := New(cols, [][]any{{math.Inf(1), "ann"}})
	require.NoError(t, err)
	assert.Equal(t, inf.Fingerprint(), inf.Clone().Fingerprint())
}

func TestClone_IsIndependent(t *testing.T) {
	a := salesTable(t)
	b := a.Clone()
	row := b.Row(0)
	row[1] = 999.0
	assert.Equal(t, 100.0, a.Value(0, 1))
	assert.True(t, a.Equal(b))
}

func TestSummarize(t *testing.T) {
	s := salesTable(t).Summarize()
	assert.Equal(t, 3, s.Rows)
	assert.Equal(t, []string{"date", "sales", "region"}, s.Columns)
	assert.Len(t, s.Sample, 3)
}

func TestProfile(t *testing.T) {
	p := salesTable(t).Profile()
	require.Len(t, p.Columns, 3)
	sales := p.Columns[1]
	require.NotNil(t, sales.Mean)
	assert.InDelta(t, 150.0, *sales.Mean, 1e-9)
	assert.InDelta(t, 150.0, *sales.Median, 1e-9)
	assert.Equal(t, 2, p.Columns[2].Unique)
	assert.Equal(t, "north", p.Columns[2].Top)
	require.NotNil(t, p.Columns[0].First)
}

func TestPearson(t *testing.T) {
	r, ok := Pearson([]float64{1, 2, 3}, []float64{2, 4, 6})
	require.True(t, ok)
	assert.InDelta(t, 1.0, r, 1e-9)

	_, ok = Pearson([]float64{1, 1}, []float64{1, 2})
	assert.False(t, ok)
}

func TestMissing(t *testing.T) {
	tbl := MustNew([]Column{{Name: "a", Type: Text}, {Name: "b", Type: Number}}, [][]any{
		{"x", nil}, {"", 1}, {"y", 2},
	})
	assert.Equal(t, 1, tbl.MissingCount("a"))
	assert.Equal(t, 1, tbl.MissingCount("b"))
	assert.Equal(t, 2, tbl.RowsWithMissing())
}

func TestReadCSV(t *testing.T) {
	in := "name,salary,joined,price\nalice,60000,2024-01-02,\"$1,200\"\nbob,40000,2024-02-03,€3.50\n"
	tbl, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)

	cols := tbl.Columns()
	assert.Equal(t, Text, cols[0].Type)
	assert.Equal(t, Number, cols[1].Type)
	assert.Equal(t, Timestamp, cols[2].Type)
	assert.Equal(t, Text, cols[3].Type)
	assert.Equal(t, 60000.0, tbl.Value(0, 1))
	assert.Equal(t, "$1,200", tbl.Value(0, 3))
}
