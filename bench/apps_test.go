package bench

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppNames(t *testing.T) {
	names := AppNames()
	assert.True(t, sort.StringsAreSorted(names))
	assert.Len(t, names, len(Apps))
	for _, name := range []string{"louvain_ig", "hirecs", "oslom2", "ganxis", "scp", "randcommuns"} {
		assert.Contains(t, names, name)
	}
}

func TestFromAlgs(t *testing.T) {
	assert.Equal(t, "../nets/1K5.nsa", fromAlgs("nets/1K5.nsa"))
	assert.Equal(t, "/abs/1K5.nsa", fromAlgs("/abs/1K5.nsa"))
}

func TestOutDir(t *testing.T) {
	defer chtemp(t)()

	dir, err := outDir("tstalg")
	require.NoError(t, err)
	assert.Equal(t, "tstalgoutp/", dir)
	fi, err := os.Stat(filepath.Join(AlgsDir, dir))
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
}
