package bench

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumais/hicbem/pool"
	"github.com/lumais/hicbem/pool/execer/execers"
	poolos "github.com/lumais/hicbem/pool/execer/os"
)

func TestShuffleNets(t *testing.T) {
	base, err := ioutil.TempDir("", "bench_test")
	require.NoError(t, err)
	defer os.RemoveAll(base)

	lines := []string{"1 2", "2 3", "3 4", "4 5", "5 1"}
	net := filepath.Join(base, "toy.nsa")
	require.NoError(t, ioutil.WriteFile(net, []byte(strings.Join(lines, "\n")+"\n"), 0644))

	p := pool.New(pool.Config{Capacity: 2, Execer: poolos.NewExecer()})
	defer p.Teardown()
	require.NoError(t, ShuffleNets(p, nil, []NetLoc{{Path: net}}, 2, true, time.Minute))

	for _, shf := range []string{"toy.1.nsa", "toy.2.nsa"} {
		data, err := ioutil.ReadFile(filepath.Join(base, shf))
		require.NoError(t, err, "missing shuffle %s", shf)
		got := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
		sort.Strings(got)
		want := append([]string(nil), lines...)
		sort.Strings(want)
		assert.Equal(t, want, got, "a shuffle must permute the original lines")
	}
}

func TestShuffleNetsRemovesRedundant(t *testing.T) {
	base, err := ioutil.TempDir("", "bench_test")
	require.NoError(t, err)
	defer os.RemoveAll(base)

	for _, name := range []string{"toy.nsa", "toy.1.nsa", "toy.2.nsa", "toy.3.nsa"} {
		require.NoError(t, ioutil.WriteFile(filepath.Join(base, name), []byte("1 2\n"), 0644))
	}

	// With overwrite off the existing shuffles satisfy the request, so no
	// jobs run; a sim execer guards against unexpected submissions.
	ex := execers.NewSimExecer()
	p := pool.New(pool.Config{Capacity: 2, Execer: ex})
	defer p.Teardown()
	require.NoError(t, ShuffleNets(p, []NetLoc{{Path: withSlash(base)}}, nil, 2, false, time.Minute))

	assert.Equal(t, 0, ex.Started())
	assert.True(t, exists(filepath.Join(base, "toy.1.nsa")))
	assert.True(t, exists(filepath.Join(base, "toy.2.nsa")))
	assert.False(t, exists(filepath.Join(base, "toy.3.nsa")), "shuffles beyond the requested count are removed")
}

func TestShuffleNetsRejectsZeroCount(t *testing.T) {
	p := pool.New(pool.Config{Capacity: 1, Execer: execers.NewSimExecer()})
	defer p.Teardown()
	assert.Error(t, ShuffleNets(p, nil, nil, 0, false, time.Minute))
}
