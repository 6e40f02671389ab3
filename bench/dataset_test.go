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

func TestNetName(t *testing.T) {
	assert.Equal(t, "1K5", netName("nets/1K5.nsa"))
	assert.Equal(t, "1K5#2", netName("nets/1K5#2.nsa"))
	assert.Equal(t, "1K5#2.3", netName("/abs/path/1K5#2.3.nsa"))
	assert.Equal(t, "plain", netName("plain"))
}

func TestIsShuffle(t *testing.T) {
	assert.False(t, isShuffle("1K5.nsa"))
	assert.False(t, isShuffle("nets/1K5#2.nsa"))
	assert.True(t, isShuffle("1K5.3.nsa"))
	assert.True(t, isShuffle("nets/1K5#2.1.nsa"))
}

func TestWithSlash(t *testing.T) {
	assert.Equal(t, "nets/", withSlash("nets"))
	assert.Equal(t, "nets/", withSlash("nets/"))
}

func TestBackupSuffixFixedOnFirstUse(t *testing.T) {
	s := &BackupSuffix{}
	first := s.Value()
	assert.NotEmpty(t, first)
	assert.Equal(t, first, s.Value(), "suffix must not change between uses")
	// Timestamp prefix plus a uuid fragment to disambiguate same-second runs.
	assert.True(t, len(first) > len("2006-01-02_15-04-05"), first)
}

func TestBackupPath(t *testing.T) {
	base, err := ioutil.TempDir("", "bench_test")
	require.NoError(t, err)
	defer os.RemoveAll(base)

	dir := filepath.Join(base, "data")
	require.NoError(t, os.Mkdir(dir, 0755))
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "x.nsa"), []byte("1 2\n"), 0644))

	suffix := &BackupSuffix{}
	require.NoError(t, BackupPath(dir+"/", suffix))
	assert.False(t, exists(dir))
	backup := dir + "-backup-" + suffix.Value()
	assert.True(t, exists(backup), "expected backup at %q", backup)
	assert.True(t, exists(filepath.Join(backup, "x.nsa")))
}

func TestDirEmpty(t *testing.T) {
	base, err := ioutil.TempDir("", "bench_test")
	require.NoError(t, err)
	defer os.RemoveAll(base)

	assert.True(t, dirEmpty(base))
	require.NoError(t, ioutil.WriteFile(filepath.Join(base, "f"), nil, 0644))
	assert.False(t, dirEmpty(base))
	assert.True(t, dirEmpty(filepath.Join(base, "nonexistent")))
}

func TestPrepareInputPlain(t *testing.T) {
	base, err := ioutil.TempDir("", "bench_test")
	require.NoError(t, err)
	defer os.RemoveAll(base)

	netsDir := filepath.Join(base, "nets")
	require.NoError(t, os.Mkdir(netsDir, 0755))
	require.NoError(t, ioutil.WriteFile(filepath.Join(netsDir, "a.nsa"), []byte("1 2\n"), 0644))
	single := filepath.Join(base, "single.nsa")
	require.NoError(t, ioutil.WriteFile(single, []byte("1 2\n"), 0644))

	dirs, files, err := PrepareInput([]NetSpec{
		{Path: netsDir},
		{Path: single, Asym: true},
	})
	require.NoError(t, err)
	require.Len(t, dirs, 1)
	assert.Equal(t, withSlash(netsDir), dirs[0].Path)
	assert.False(t, dirs[0].Asym)
	require.Len(t, files, 1)
	assert.Equal(t, single, files[0].Path)
	assert.True(t, files[0].Asym)
}

func TestPrepareInputWildcards(t *testing.T) {
	base, err := ioutil.TempDir("", "bench_test")
	require.NoError(t, err)
	defer os.RemoveAll(base)

	require.NoError(t, ioutil.WriteFile(filepath.Join(base, "a.nsa"), []byte("1 2\n"), 0644))
	require.NoError(t, ioutil.WriteFile(filepath.Join(base, "b.nsa"), []byte("1 2\n"), 0644))
	require.NoError(t, ioutil.WriteFile(filepath.Join(base, "c.cnl"), []byte("1 2\n"), 0644))

	_, files, err := PrepareInput([]NetSpec{{Path: filepath.Join(base, "*.nsa")}})
	require.NoError(t, err)
	assert.Len(t, files, 2)

	dirs, files, err := PrepareInput([]NetSpec{{Path: filepath.Join(base, "nothing*")}})
	require.NoError(t, err, "an unmatched pattern is only a warning")
	assert.Empty(t, dirs)
	assert.Empty(t, files)
}

func TestPrepareInputGenDirs(t *testing.T) {
	base, err := ioutil.TempDir("", "bench_test")
	require.NoError(t, err)
	defer os.RemoveAll(base)

	net := filepath.Join(base, "mynet.nsa")
	require.NoError(t, ioutil.WriteFile(net, []byte("1 2\n"), 0644))

	_, files, err := PrepareInput([]NetSpec{{Path: net, GenDirs: true}})
	require.NoError(t, err)
	require.Len(t, files, 1)

	dirname := filepath.Join(base, "mynet")
	assert.Equal(t, filepath.Join(dirname, "mynet.nsa"), files[0].Path)
	link, err := os.Stat(files[0].Path)
	require.NoError(t, err)
	origin, err := os.Stat(net)
	require.NoError(t, err)
	assert.True(t, os.SameFile(link, origin), "the dir must hard-link the origin")
}

func TestPrepareDirBacksUpFormerContent(t *testing.T) {
	base, err := ioutil.TempDir("", "bench_test")
	require.NoError(t, err)
	defer os.RemoveAll(base)

	net := filepath.Join(base, "mynet.nsa")
	require.NoError(t, ioutil.WriteFile(net, []byte("1 2\n"), 0644))
	dirname := filepath.Join(base, "mynet")
	require.NoError(t, os.Mkdir(dirname, 0755))
	require.NoError(t, ioutil.WriteFile(filepath.Join(dirname, "stale.res"), []byte("old"), 0644))

	suffix := &BackupSuffix{}
	require.NoError(t, prepareDir(dirname, net, suffix))

	assert.True(t, exists(filepath.Join(dirname, "mynet.nsa")))
	assert.False(t, exists(filepath.Join(dirname, "stale.res")))
	backups, err := filepath.Glob(dirname + "-backup-*")
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.True(t, exists(filepath.Join(backups[0], "stale.res")), "former content must survive in the backup")
}

func TestCopyFile(t *testing.T) {
	base, err := ioutil.TempDir("", "bench_test")
	require.NoError(t, err)
	defer os.RemoveAll(base)

	src := filepath.Join(base, "src")
	dst := filepath.Join(base, "dst")
	content := strings.Repeat("seed data\n", 10)
	require.NoError(t, ioutil.WriteFile(src, []byte(content), 0644))
	require.NoError(t, copyFile(src, dst))
	got, err := ioutil.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, content, string(got))
}
