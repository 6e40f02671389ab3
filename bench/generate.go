package bench

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/lumais/hicbem/pool"
	"github.com/lumais/hicbem/pool/execer"
	osexecer "github.com/lumais/hicbem/pool/execer/os"
)

const (
	// Synthetic dataset layout under the base dir.
	paramsDir = "params" // network generation parameters per network type
	seedsDir  = "seeds"  // generation seeds per network instance
	// NetsDir holds one subdir per network type with all instances and
	// shuffles.
	NetsDir = "networks"

	extGenParams = ".ngp"
	extGenSeed   = ".ngs"
	timeSeedFile = "time_seed.dat"

	netGenTimeout = 15 * time.Minute
	// DefaultGenTimeout bounds the whole generation phase.
	DefaultGenTimeout = 2 * time.Hour
	// The generator reads time_seed.dat on startup; the delay lets each
	// launch snapshot the seed before the next job overwrites it.
	genStartDelay = 100 * time.Millisecond

	baseNodes = 1000 // starting number of nodes, N0
)

// Variations of the generated networks: node count multipliers of baseNodes
// and average link densities.
var (
	netSizeMuls  = []int{1, 2, 5, 10, 25, 50}
	netDensities = []int{5, 10}
)

// genOpts are the LFR benchmark options written to a .ngp parameters file.
type genOpts struct {
	nodes int     // N
	k     int     // average degree
	maxk  int     // max degree
	mut   float64 // topology mixing
	muw   float64 // weights mixing
	beta  float64
	t1    float64
	t2    float64
	minc  int // min community size
	maxc  int // max community size
	on    int // number of overlapping nodes
	om    int // memberships of an overlapping node
	cnl   int // output community-nodes list
	name  string
}

// newGenOpts derives the dependent options from the network size the way
// the reference parameterization does.
func newGenOpts(nodes, k int, name string) genOpts {
	mut := 0.275
	return genOpts{
		nodes: nodes,
		k:     k,
		maxk:  int(math.Round(math.Sqrt(float64(nodes)))),
		mut:   mut,
		muw:   mut * 2 / 3,
		beta:  1.35,
		t1:    1.65,
		t2:    1.3,
		minc:  5 + nodes/baseNodes,
		maxc:  nodes / 3,
		on:    int(float64(nodes) * mut * mut),
		om:    2,
		cnl:   1,
		name:  name,
	}
}

func (o genOpts) render() string {
	return fmt.Sprintf("-N %d\n-k %d\n-maxk %d\n-mut %g\n-muw %g\n-beta %g\n-t1 %g\n-t2 %g\n-minc %d\n-maxc %d\n-on %d\n-om %d\n-cnl %d\n-name %s\n",
		o.nodes, o.k, o.maxk, o.mut, o.muw, o.beta, o.t1, o.t2, o.minc, o.maxc, o.on, o.om, o.cnl, o.name)
}

// GenerateNets generates synthetic networks with ground-truth communities
// and saves the generation parameters and seeds. Existing params/seeds/
// networks dirs are backed up first when overwriting. count instances of
// each network type are produced, all grouped under one task per type.
func GenerateNets(p *pool.ExecPool, genBin, baseDir string, overwrite bool, count int, genTimeout time.Duration) error {
	if count < 1 {
		return errors.New("number of network instances to generate must be positive")
	}
	paramsPath := filepath.Join(baseDir, paramsDir)
	seedsPath := filepath.Join(baseDir, seedsDir)
	netsPath := filepath.Join(baseDir, NetsDir)

	if overwrite {
		suffix := &BackupSuffix{}
		for _, dir := range []string{paramsPath, seedsPath, netsPath} {
			if exists(dir) && !dirEmpty(dir) {
				if err := BackupPath(dir, suffix); err != nil {
					return err
				}
			}
		}
	}
	for _, dir := range []string{baseDir, paramsPath, seedsPath, netsPath} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrap(err, "preparing synthetic dataset dirs")
		}
	}

	binName := filepath.Base(genBin)
	binCmd := "./" + binName
	timeSeed := filepath.Join(baseDir, timeSeedFile)
	if !exists(timeSeed) {
		// A bare generator run creates time_seed.dat, which subsequent runs
		// consume and advance.
		proc, err := osexecer.NewExecer().Exec(execer.Command{
			Argv: []string{binCmd}, Dir: baseDir, Stdout: os.Stdout, Stderr: os.Stderr})
		if err != nil {
			return errors.Wrap(err, "bootstrapping the generator time seed")
		}
		proc.Wait()
		if !exists(timeSeed) {
			return errors.Errorf("%s was not created by the generator", timeSeed)
		}
	}

	jobs := 0
	for _, nm := range netSizeMuls {
		for _, k := range netDensities {
			name := fmt.Sprintf("%dK%d", nm, k)
			paramsFile := filepath.Join(paramsPath, name+extGenParams)
			if overwrite || !exists(paramsFile) {
				log.WithFields(log.Fields{"params": paramsFile}).Info("Generating parameters file")
				opts := newGenOpts(nm*baseNodes, k, name)
				if err := writeFile(paramsFile, opts.render()); err != nil {
					return err
				}
			}

			netDir := filepath.Join(netsPath, name)
			if err := os.MkdirAll(netDir, 0755); err != nil {
				return errors.Wrapf(err, "preparing %q", netDir)
			}
			// The task correlates all instances of this network type, e.g.
			// for shared backup naming by later phases.
			task := pool.NewTask(name)
			relParams := filepath.Join(paramsDir, name+extGenParams)
			for i := 0; i < count; i++ {
				jobName := name
				if i > 0 {
					jobName = fmt.Sprintf("%s%s%d", name, sepInst, i)
				}
				// Output path relative to the generator's working dir.
				netFile := filepath.Join(NetsDir, name, jobName)
				if !overwrite && exists(filepath.Join(baseDir, netFile+ExtNetwork)) {
					continue
				}
				job := &pool.Job{
					Name:          jobName,
					Task:          task,
					Workdir:       baseDir,
					Argv:          Traced(jobName, binName+ExtResources, binCmd, "-f", relParams, "-name", netFile),
					Timeout:       netGenTimeout,
					ExpectTimeout: true,
					StartDelay:    genStartDelay,
					OnStart: func(j *pool.Job) error {
						// Snapshot the generation seed used by this instance.
						return copyFile(timeSeed, filepath.Join(seedsPath, j.Name+extGenSeed))
					},
				}
				if err := p.Execute(job); err != nil {
					log.WithFields(log.Fields{"job": jobName, "error": err}).Error("Could not submit generation job")
					continue
				}
				jobs++
			}
		}
	}
	log.Info("Parameter files generation is completed")

	if genTimeout <= 0 {
		genTimeout = DefaultGenTimeout
	}
	if lim := time.Duration(count) * netGenTimeout; lim > genTimeout {
		genTimeout = lim
	}
	if err := p.Join(genTimeout); err != nil {
		log.WithFields(log.Fields{"error": err}).Error("Synthetic network generation did not drain cleanly")
	}
	log.WithFields(log.Fields{"jobs": jobs}).Info("Synthetic network generation is completed")
	return nil
}

func writeFile(path, content string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "writing %q", path)
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return errors.Wrapf(err, "writing %q", path)
	}
	return f.Close()
}
