package nzb_test

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"juicenet/internal/nzb"
)

const sample = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE nzb PUBLIC "-//newzBin//DTD NZB 1.1//EN" "http://www.newzbin.com/DTD/nzb/nzb-1.1.dtd">
<nzb xmlns="http://www.newzbin.com/DTD/2003/nzb">
  <head>
    <meta type="title">MovieA</meta>
  </head>
  <file poster="poster &lt;p@example&gt;" date="1700000000" subject="[1/2] - &quot;a.mkv&quot; yEnc (1/2) 1400000">
    <groups>
      <group>alt.binaries.test</group>
    </groups>
    <segments>
      <segment bytes="739920" number="2">&lt;b2@nyuu&gt;</segment>
      <segment bytes="739920" number="1">a1@nyuu</segment>
    </segments>
  </file>
  <file poster="poster" date="1700000000" subject="MovieA.par2 yEnc (1/1)">
    <groups>
      <group>alt.binaries.test</group>
    </groups>
    <segments>
      <segment bytes="4096" number="1">p1@nyuu</segment>
    </segments>
  </file>
</nzb>
`

func TestParse(t *testing.T) {
	doc, err := nzb.Parse(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, doc.Files, 2)

	file := doc.Files[0]
	assert.Equal(t, "a.mkv", file.Name())
	assert.Equal(t, "poster <p@example>", file.Poster)
	assert.Equal(t, int64(1700000000), file.Date)
	assert.Equal(t, []string{"alt.binaries.test"}, file.Groups)
	assert.Equal(t, "b2@nyuu", file.Segments[0].MessageID, "angle brackets stripped")
	assert.Equal(t, int64(1479840), file.Bytes())

	file.SortSegments()
	assert.Equal(t, 1, file.Segments[0].Number)

	assert.Equal(t, "MovieA.par2", doc.Files[1].Name())
	assert.Equal(t, 3, doc.TotalSegments())
	assert.Equal(t, "MovieA", doc.MetaValue("title"))
	assert.Empty(t, doc.MetaValue("password"))
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := nzb.Parse(strings.NewReader("not xml at all"))
	assert.Error(t, err)
}

func TestWritePreservesEveryFileAndSegment(t *testing.T) {
	doc, err := nzb.Parse(strings.NewReader(sample))
	require.NoError(t, err)
	doc.SetMeta("title", "Renamed")
	doc.SetMeta("password", "")

	var buf bytes.Buffer
	require.NoError(t, nzb.Write(&buf, doc))
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "<?xml"))
	assert.Contains(t, out, "nzb-1.1.dtd")
	assert.Contains(t, out, `xmlns="`+nzb.Namespace+`"`)

	again, err := nzb.Parse(&buf)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", again.MetaValue("title"))
	require.Len(t, again.Files, len(doc.Files))
	for i := range doc.Files {
		assert.Equal(t, doc.Files[i].Subject, again.Files[i].Subject)
		assert.Equal(t, doc.Files[i].Segments, again.Files[i].Segments)
	}
}

func TestWriteFileIsAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "MovieA.nzb")
	doc := &nzb.NZB{Files: []nzb.File{{
		Subject:  `"a.mkv" yEnc (1/1)`,
		Groups:   []string{"alt.binaries.test"},
		Segments: []nzb.Segment{{Bytes: 10, Number: 1, MessageID: "x@y"}},
	}}}
	require.NoError(t, nzb.WriteFile(path, doc))

	parsed, err := nzb.ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, "x@y", parsed.Files[0].Segments[0].MessageID)

	entries, err := filepath.Glob(filepath.Join(dir, "nested", ".nzb-*"))
	require.NoError(t, err)
	assert.Empty(t, entries, "temp files left behind")
}
