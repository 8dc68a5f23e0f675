package textio

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip_AllCompressions(t *testing.T) {
	for _, c := range []Compression{CompressionNone, CompressionGzip, CompressionZSTD, CompressionLZ4} {
		t.Run(c.String(), func(t *testing.T) {
			var buf bytes.Buffer
			w, err := NewWriter(&buf, c)
			require.NoError(t, err)
			require.NoError(t, w.Write("1", "a,b", Escape("tab\there")))
			require.NoError(t, w.Write("2", "", "x"))
			require.NoError(t, w.Close())
			assert.Equal(t, 2, w.Count())

			r, err := NewReader(&buf, c)
			require.NoError(t, err)
			defer r.Close()

			rec, err := r.ReadN(3)
			require.NoError(t, err)
			assert.Equal(t, "tab\there", Unescape(rec[2]))
			assert.Equal(t, 1, r.Line())

			rec, err = r.ReadN(3)
			require.NoError(t, err)
			assert.Equal(t, []string{"2", "", "x"}, rec)

			_, err = r.Read()
			assert.ErrorIs(t, err, io.EOF)
		})
	}
}

func TestReader_SkipsBlankLinesAndMissingNewline(t *testing.T) {
	r, err := NewReader(strings.NewReader("a\tb\n\n\nc\td"), CompressionNone)
	require.NoError(t, err)

	rec, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, rec)

	rec, err = r.Read()
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, rec)
	assert.Equal(t, 4, r.Line())

	_, err = r.Read()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReader_ReadNRejectsWrongArity(t *testing.T) {
	r, err := NewReader(strings.NewReader("1\t2\n"), CompressionNone)
	require.NoError(t, err)

	_, err = r.ReadN(3)
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestEscape(t *testing.T) {
	in := "back\\slash\nnew\tline\r"
	out := Escape(in)
	assert.NotContains(t, out, "\t")
	assert.NotContains(t, out, "\n")
	assert.Equal(t, in, Unescape(out))
	assert.Equal(t, "plain", Unescape("plain"))
}

func TestCompressionFor(t *testing.T) {
	assert.Equal(t, CompressionGzip, CompressionFor("eqs.txt.gz"))
	assert.Equal(t, CompressionZSTD, CompressionFor("signatures.zst"))
	assert.Equal(t, CompressionLZ4, CompressionFor("domains.lz4"))
	assert.Equal(t, CompressionNone, CompressionFor("columns.tsv"))
}

func TestTrimSuffix(t *testing.T) {
	assert.Equal(t, "cities.csv", TrimSuffix("cities.csv.gz"))
	assert.Equal(t, "cities.csv", TrimSuffix("cities.csv"))
	assert.Equal(t, "eqs", TrimSuffix("eqs.zst"))
}
