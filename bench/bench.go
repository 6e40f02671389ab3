package bench

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/lumais/hicbem/pool"
)

// GenMode selects synthetic network generation behavior.
type GenMode int

const (
	GenOff GenMode = iota
	// GenMissing generates only networks that do not exist yet.
	GenMissing
	// GenForce regenerates everything, backing up existing data.
	GenForce
)

// ConvMode selects network format conversion behavior, mirroring GenMode.
type ConvMode int

const (
	ConvOff ConvMode = iota
	ConvMissing
	ConvForce
)

// GeneratorBin is the LFR benchmark binary generating synthetic networks
// with ground-truth overlapping communities.
const GeneratorBin = "lfrbench_udwov"

// DefaultSyntDir is where synthetic datasets are generated by default.
const DefaultSyntDir = "syntnets/"

// Config gathers the parsed benchmark parameters.
type Config struct {
	Gen          GenMode
	GenInstances int // instances per network type, >= 1
	ShuffleCount int // shuffles per network instance, >= 0
	SyntDir      string
	Conv         ConvMode
	ResolveDups  bool // resolve duplicated links on conversion
	RunApps      bool
	EvalFlags    int
	Datasets     []NetSpec
	// Timeout bounds each single algorithm execution/evaluation. Zero
	// means unbounded.
	Timeout    time.Duration
	Algorithms []string
}

// Run executes the benchmark phases in order against the given pool:
// dataset preparation, generation, shuffling, conversion, algorithm
// execution, evaluation. Each phase submits its jobs and joins the pool
// before the next phase reads anything from disk.
func Run(cfg Config, p *pool.ExecPool) error {
	start := time.Now()
	if cfg.SyntDir == "" {
		cfg.SyntDir = DefaultSyntDir
	}
	cfg.SyntDir = withSlash(cfg.SyntDir)

	benchPath := filepath.Join(cfg.SyntDir, GeneratorBin)
	if !exists(cfg.SyntDir) {
		if err := os.MkdirAll(cfg.SyntDir, 0755); err != nil {
			return errors.Wrap(err, "preparing the synthetic dataset dir")
		}
		// A symlink works across file systems where a hard link would not.
		if cfg.SyntDir != DefaultSyntDir && exists(filepath.Join(DefaultSyntDir, GeneratorBin)) {
			if rel, err := filepath.Rel(cfg.SyntDir, filepath.Join(DefaultSyntDir, GeneratorBin)); err == nil {
				if err = os.Symlink(rel, benchPath); err != nil && !os.IsExist(err) {
					log.WithFields(log.Fields{"error": err}).Warn("Could not link the network generator")
				}
			}
		}
	}

	dirs, files, err := PrepareInput(cfg.Datasets)
	if err != nil {
		return err
	}

	if cfg.Gen != GenOff && cfg.GenInstances >= 1 {
		if err := GenerateNets(p, benchPath, cfg.SyntDir, cfg.Gen == GenForce, cfg.GenInstances, DefaultGenTimeout); err != nil {
			return err
		}
	}
	// Pick up the generated networks; must happen after generation since it
	// creates the per-network dirs.
	if cfg.Gen != GenOff || (len(dirs) == 0 && len(files) == 0) {
		dirs = append(dirs, NetLoc{Path: filepath.Join(cfg.SyntDir, NetsDir) + "/*/"})
	}

	if cfg.ShuffleCount > 0 {
		if err := ShuffleNets(p, dirs, files, cfg.ShuffleCount, cfg.Gen == GenForce, DefaultShuffleGlobalTimeout); err != nil {
			return err
		}
	}

	if cfg.Conv != ConvOff {
		count := 0
		for _, d := range dirs {
			count += ConvertNets(p, d.Path, d.Asym, cfg.Conv == ConvForce, cfg.ResolveDups)
		}
		for _, f := range files {
			if err := ConvertNet(p, f.Path, f.Asym, cfg.Conv == ConvForce, cfg.ResolveDups); err != nil {
				log.WithFields(log.Fields{"net": f.Path, "error": err}).Error("Could not submit conversion")
				continue
			}
			count++
		}
		limit := DefaultConvertGlobalTimeout
		if lim := time.Duration(count) * convertTimeout; lim > limit {
			limit = lim
		}
		if err := p.Join(limit); err != nil {
			log.WithFields(log.Fields{"error": err}).Error("Network conversion did not drain cleanly")
		}
		log.WithFields(log.Fields{"networks": count}).Info("Networks conversion is completed")
	}

	if cfg.RunApps {
		if err := RunApps(p, cfg.Algorithms, dirs, files, cfg.Timeout); err != nil {
			return err
		}
	}

	if cfg.EvalFlags != 0 {
		if err := EvalResults(p, cfg.EvalFlags, cfg.Algorithms, dirs, files, cfg.Timeout, time.Since(start)); err != nil {
			return err
		}
	}

	log.WithFields(log.Fields{
		"elapsed": pool.FmtHMS(time.Since(start)),
		"summary": p.Summary().String(),
	}).Info("The benchmark is completed")
	return nil
}
