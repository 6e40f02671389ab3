package bench

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResValue(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"0.85\n", 0.85},
		{"mod: 0.4231 (0.4188 flat)", 0.4231},
		{"NMI_max:\n0.73\n", 0.73},
		{"noise words then 1e-3 trailing", 0.001},
	}
	for _, c := range cases {
		v, err := ParseResValue(strings.NewReader(c.in))
		require.NoError(t, err, "input %q", c.in)
		assert.Equal(t, c.want, v, "input %q", c.in)
	}

	_, err := ParseResValue(strings.NewReader("no numbers here"))
	assert.Error(t, err)
	_, err = ParseResValue(strings.NewReader(""))
	assert.Error(t, err)
}

// chtemp switches the working directory to a fresh temp dir and returns a
// restore func, since the benchmark layout is relative to the run dir.
func chtemp(t *testing.T) func() {
	base, err := ioutil.TempDir("", "bench_test")
	require.NoError(t, err)
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(base))
	return func() {
		os.Chdir(old)
		os.RemoveAll(base)
	}
}

func TestAggregateRes(t *testing.T) {
	defer chtemp(t)()

	outp := filepath.Join(AlgsDir, "tstalgoutp")
	require.NoError(t, os.MkdirAll(outp, 0755))
	require.NoError(t, ioutil.WriteFile(filepath.Join(outp, "a.nmi.res"), []byte("0.5\n"), 0644))
	require.NoError(t, ioutil.WriteFile(filepath.Join(outp, "b.nmi.res"), []byte("nmi: 0.7\n"), 0644))
	require.NoError(t, ioutil.WriteFile(filepath.Join(outp, "c.nmi.res"), []byte("garbage\n"), 0644))
	// A different measure must not leak into the aggregate.
	require.NoError(t, ioutil.WriteFile(filepath.Join(outp, "a.mod.res"), []byte("0.9\n"), 0644))

	mean, count, err := AggregateRes("tstalg", "nmi")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "unparsable files are skipped, other measures excluded")
	assert.InDelta(t, 0.6, mean, 1e-9)

	mean, count, err = AggregateRes("tstalg", "mod")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.InDelta(t, 0.9, mean, 1e-9)

	_, count, err = AggregateRes("nosuchalg", "nmi")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestEvalArgv(t *testing.T) {
	assert.Equal(t, []string{"./gecmi", "../nets/1K5.cnl", "louvain_igoutp/1K5.cnl"},
		evalArgv("nmi", "nets/1K5.cnl", "louvain_igoutp/1K5.cnl"))
	assert.Equal(t, []string{"./onmi", "../nets/1K5.cnl", "louvain_igoutp/1K5.cnl"},
		evalArgv("nmi-s", "nets/1K5.cnl", "louvain_igoutp/1K5.cnl"))
	assert.Equal(t, []string{"./hirecs", "-e=hirecsoutp/1K5.cnl", "../nets/1K5.hig"},
		evalArgv("mod", "nets/1K5.hig", "hirecsoutp/1K5.cnl"))
	assert.Nil(t, evalArgv("unknown", "x", "y"))
	assert.Equal(t, "/abs/1K5.cnl", evalArgv("nmi", "/abs/1K5.cnl", "out.cnl")[1],
		"absolute base paths are not rebased")
}
