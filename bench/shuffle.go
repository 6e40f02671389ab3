package bench

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/lumais/hicbem/pool"
)

const (
	shuffleTimeout = 3 * time.Minute
	// DefaultShuffleGlobalTimeout bounds the whole shuffling phase.
	DefaultShuffleGlobalTimeout = 30 * time.Minute
)

// ShuffleNets produces shufNum randomized copies of every target network,
// named <name>.<i>.nsa next to the original. Shuffles are never shuffled
// again, and shuffles beyond the requested count are removed. With overwrite
// false, existing shuffles are kept.
func ShuffleNets(p *pool.ExecPool, dirs, files []NetLoc, shufNum int, overwrite bool, globalTimeout time.Duration) error {
	if shufNum < 1 {
		return errors.New("number of shuffles must be positive")
	}

	count := 0
	shuffleNet := func(netFile string) {
		dir, base := filepath.Split(netFile)
		if dir == "" {
			dir = "."
		}
		if isShuffle(netFile) {
			// Drop redundant shuffles beyond the requested count.
			idx := filepath.Ext(netName(netFile))
			if n, err := strconv.Atoi(idx[1:]); err == nil && n > shufNum {
				if err := os.Remove(netFile); err != nil {
					log.WithFields(log.Fields{"file": netFile, "error": err}).Warn("Could not remove redundant shuffle")
				}
			}
			return
		}
		name := netName(netFile)
		task := pool.NewTask(name)
		for i := 1; i <= shufNum; i++ {
			out := fmt.Sprintf("%s.%d%s", name, i, ExtNetwork)
			if !overwrite && exists(filepath.Join(dir, out)) {
				continue
			}
			job := &pool.Job{
				Name:    fmt.Sprintf("%s_shf.%d", name, i),
				Task:    task,
				Workdir: dir,
				Argv:    []string{"sort", "-R", base, "-o", out},
				Timeout: shuffleTimeout,
			}
			if err := p.Execute(job); err != nil {
				log.WithFields(log.Fields{"job": job.Name, "error": err}).Error("Could not submit shuffle job")
				continue
			}
			count++
		}
	}

	for _, d := range dirs {
		for _, net := range netsInDir(d.Path) {
			shuffleNet(net)
		}
	}
	for _, f := range files {
		shuffleNet(f.Path)
	}

	if globalTimeout <= 0 {
		globalTimeout = DefaultShuffleGlobalTimeout
	}
	if lim := time.Duration(count) * shuffleTimeout; lim > globalTimeout {
		globalTimeout = lim
	}
	if err := p.Join(globalTimeout); err != nil {
		log.WithFields(log.Fields{"error": err}).Error("Network shuffling did not drain cleanly")
	}
	log.WithFields(log.Fields{"shuffles": count}).Info("Network shuffling is completed")
	return nil
}
