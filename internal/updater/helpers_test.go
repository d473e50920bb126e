package updater

import (
	"iter"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// testCollection returns a collection for linux64 whose registry holds only
// the named, non-uploadable sites.
func testCollection(t *testing.T, sites ...string) *Collection {
	t.Helper()
	c := NewCollection(WithPlatform("linux64"))
	c.sites = newEmptyRegistry()
	for _, name := range sites {
		c.AddUpdateSite(name, "https://"+strings.ToLower(name)+".example.org", "", "", 0)
	}
	return c
}

func version(checksum string, timestamp int64) *Version {
	return &Version{Checksum: checksum, Timestamp: timestamp}
}

func merge(t *testing.T, c *Collection, local []LocalFact, remote map[string]*RemoteIndex) []string {
	t.Helper()
	diagnostics, err := c.Merge(local, remote)
	require.NoError(t, err)
	return diagnostics
}

func filenames(files []*FileRecord) []string {
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Filename
	}
	return names
}

func collect(seq iter.Seq[*FileRecord]) []*FileRecord {
	return slices.Collect(seq)
}
