// Package bench orchestrates the clustering benchmark pipeline: it prepares
// dataset directories, submits generation, shuffling, conversion, clustering
// and evaluation jobs to an execution pool, and reads result files only
// after the pool has drained.
package bench

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	uuid "github.com/nu7hatch/gouuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	// ExtNetwork is the extension of the network files processed by the
	// algorithms: tab/space separated arcs.
	ExtNetwork = ".nsa"
	// ExtClusters is the extension of ground-truth community files.
	ExtClusters = ".cnl"
	// ExtHig is the extension of converted networks in the hig format.
	ExtHig = ".hig"
	// sepInst separates a network name from its instance index. Dataset
	// names must not contain "." outside the extension, since dots mark
	// shuffle indices.
	sepInst = "#"
)

// NetSpec is one user-specified dataset: a file or directory path, possibly
// with wildcards.
type NetSpec struct {
	Path string
	// Asym marks link weights as asymmetric (arcs); default is symmetric
	// edges.
	Asym bool
	// GenDir requests a dedicated directory per network file, with the
	// origin hard-linked inside and any previous non-empty directory backed
	// up first.
	GenDirs bool
}

// NetLoc is a resolved target: a directory (trailing separator, may contain
// wildcards) or a single network file.
type NetLoc struct {
	Path string
	Asym bool
}

// BackupSuffix yields one shared suffix for a group of related backups, so
// all instances of a network land under the same backup name. The value is
// fixed on first use.
type BackupSuffix struct {
	once sync.Once
	val  string
}

func (b *BackupSuffix) Value() string {
	b.once.Do(func() {
		b.val = time.Now().Format("2006-01-02_15-04-05")
		if id, err := uuid.NewV4(); err == nil {
			b.val += "-" + id.String()[:8]
		}
	})
	return b.val
}

// BackupPath moves path aside to "<path>-backup-<suffix>".
func BackupPath(path string, suffix *BackupSuffix) error {
	clean := strings.TrimRight(path, "/")
	dst := clean + "-backup-" + suffix.Value()
	if err := os.Rename(clean, dst); err != nil {
		return errors.Wrapf(err, "backing up %q", path)
	}
	log.WithFields(log.Fields{
		"path":   path,
		"backup": dst,
	}).Info("Backed up existing data")
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func dirEmpty(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return true
	}
	defer f.Close()
	_, err = f.Readdirnames(1)
	return err == io.EOF
}

// netName strips the directory and extension: "nets/1K5#2.nsa" -> "1K5#2".
func netName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "copying %q", src)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrapf(err, "copying %q to %q", src, dst)
	}
	if _, err = io.Copy(out, in); err != nil {
		out.Close()
		return errors.Wrapf(err, "copying %q to %q", src, dst)
	}
	return out.Close()
}

// PrepareInput resolves the user-specified datasets into target directories
// and files, generating per-network directories (with backup of former
// content) where requested.
func PrepareInput(specs []NetSpec) (dirs []NetLoc, files []NetLoc, err error) {
	for _, spec := range specs {
		matches, err := filepath.Glob(spec.Path)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "bad dataset pattern %q", spec.Path)
		}
		if len(matches) == 0 {
			log.WithFields(log.Fields{"pattern": spec.Path}).Warn("Dataset matches nothing")
			continue
		}
		// One shared suffix per spec so related backups line up.
		suffix := &BackupSuffix{}
		for _, path := range matches {
			fi, err := os.Stat(path)
			if err != nil {
				log.WithFields(log.Fields{"path": path, "error": err}).Warn("Skipping unreadable dataset")
				continue
			}
			if fi.IsDir() {
				if !spec.GenDirs {
					dirs = append(dirs, NetLoc{Path: withSlash(path), Asym: spec.Asym})
					continue
				}
				nets, _ := filepath.Glob(filepath.Join(path, "*"+ExtNetwork))
				for _, net := range nets {
					dirname := strings.TrimSuffix(net, filepath.Ext(net))
					if err := prepareDir(dirname, net, suffix); err != nil {
						return nil, nil, err
					}
					dirs = append(dirs, NetLoc{Path: withSlash(dirname), Asym: spec.Asym})
				}
				continue
			}
			if spec.GenDirs {
				dirname := strings.TrimSuffix(path, filepath.Ext(path))
				if err := prepareDir(dirname, path, suffix); err != nil {
					return nil, nil, err
				}
				files = append(files, NetLoc{Path: filepath.Join(dirname, filepath.Base(path)), Asym: spec.Asym})
			} else {
				files = append(files, NetLoc{Path: path, Asym: spec.Asym})
			}
		}
	}
	return dirs, files, nil
}

// prepareDir backs up a non-empty dir, recreates it if needed and hard-links
// the original network inside. The hard link keeps the initial copy in the
// archive even when the origin changes later.
func prepareDir(dirname, netFile string, suffix *BackupSuffix) error {
	if exists(dirname) && !dirEmpty(dirname) {
		if err := BackupPath(dirname, suffix); err != nil {
			return err
		}
	}
	if !exists(dirname) {
		if err := os.Mkdir(dirname, 0755); err != nil {
			return errors.Wrapf(err, "preparing dataset dir %q", dirname)
		}
	}
	link := filepath.Join(dirname, filepath.Base(netFile))
	if err := os.Link(netFile, link); err != nil && !os.IsExist(err) {
		return errors.Wrapf(err, "linking %q into %q", netFile, dirname)
	}
	return nil
}

func withSlash(path string) string {
	if strings.HasSuffix(path, "/") {
		return path
	}
	return path + "/"
}

// netsInDir lists the network files under a (possibly wildcarded) dir path.
func netsInDir(dir string) []string {
	matches, err := filepath.Glob(dir + "*" + ExtNetwork)
	if err != nil {
		log.WithFields(log.Fields{"dir": dir, "error": err}).Warn("Bad networks dir pattern")
		return nil
	}
	return matches
}

// isShuffle reports whether the file name carries a shuffle index
// ("1K5.3.nsa" but not "1K5.nsa").
func isShuffle(path string) bool {
	return filepath.Ext(netName(path)) != ""
}
