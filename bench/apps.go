package bench

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/lumais/hicbem/pool"
)

// AlgsDir holds the clustering algorithm executables; every app job runs
// with it as the working directory and writes into "<alg>outp/" beneath it.
const AlgsDir = "algorithms/"

// AppFunc submits the jobs benchmarking one algorithm on one network and
// returns the number of jobs scheduled.
type AppFunc func(p *pool.ExecPool, netFile string, asym bool, timeout time.Duration) (int, error)

// Apps is the registry of benchmarked clustering algorithms.
var Apps = map[string]AppFunc{
	"louvain_ig":  execLouvainIG,
	"hirecs":      execHirecs,
	"oslom2":      execOslom2,
	"ganxis":      execGanxis,
	"scp":         execSCP,
	"randcommuns": execRandcommuns,
}

// AppNames returns the registered algorithm names, sorted.
func AppNames() []string {
	names := make([]string, 0, len(Apps))
	for name := range Apps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// outDir ensures and returns the output dir of an algorithm, relative to
// AlgsDir.
func outDir(alg string) (string, error) {
	dir := alg + "outp/"
	if err := os.MkdirAll(filepath.Join(AlgsDir, dir), 0755); err != nil {
		return "", errors.Wrapf(err, "preparing output dir of %s", alg)
	}
	return dir, nil
}

// fromAlgs rebases a caller-relative path for a process whose working
// directory is AlgsDir.
func fromAlgs(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return "../" + path
}

// submitApp wraps argv with the resource tracer and submits it as one job
// running in AlgsDir.
func submitApp(p *pool.ExecPool, alg, netFile string, timeout time.Duration, argv ...string) (int, error) {
	name := alg + "_" + netName(netFile)
	job := &pool.Job{
		Name:    name,
		Workdir: AlgsDir,
		Argv:    Traced(name, alg+ExtResources, argv...),
		Timeout: timeout,
	}
	if err := p.Execute(job); err != nil {
		return 0, err
	}
	return 1, nil
}

func execLouvainIG(p *pool.ExecPool, netFile string, asym bool, timeout time.Duration) (int, error) {
	dir, err := outDir("louvain_ig")
	if err != nil {
		return 0, err
	}
	argv := []string{pyExec, "./louvain_igraph.py", "-i", fromAlgs(netFile),
		"-o", filepath.Join(dir, netName(netFile)+ExtClusters)}
	if asym {
		argv = append(argv, "-d")
	}
	return submitApp(p, "louvain_ig", netFile, timeout, argv...)
}

func execHirecs(p *pool.ExecPool, netFile string, asym bool, timeout time.Duration) (int, error) {
	dir, err := outDir("hirecs")
	if err != nil {
		return 0, err
	}
	return submitApp(p, "hirecs", netFile, timeout,
		"./hirecs", "-oc", "-cls="+filepath.Join(dir, netName(netFile)+ExtClusters),
		fromAlgs(netFile))
}

func execOslom2(p *pool.ExecPool, netFile string, asym bool, timeout time.Duration) (int, error) {
	if _, err := outDir("oslom2"); err != nil {
		return 0, err
	}
	bin := "./oslom_undir"
	if asym {
		bin = "./oslom_dir"
	}
	return submitApp(p, "oslom2", netFile, timeout,
		bin, "-f", fromAlgs(netFile), "-w")
}

func execGanxis(p *pool.ExecPool, netFile string, asym bool, timeout time.Duration) (int, error) {
	dir, err := outDir("ganxis")
	if err != nil {
		return 0, err
	}
	argv := []string{"java", "-jar", "./GANXiSw.jar", "-i", fromAlgs(netFile), "-d", dir}
	if !asym {
		argv = append(argv, "-Sym", "1")
	}
	return submitApp(p, "ganxis", netFile, timeout, argv...)
}

func execSCP(p *pool.ExecPool, netFile string, asym bool, timeout time.Duration) (int, error) {
	dir, err := outDir("scp")
	if err != nil {
		return 0, err
	}
	// k-clique size 4 per the reference configuration.
	return submitApp(p, "scp", netFile, timeout,
		pyExec, "./scp.py", fromAlgs(netFile), "4",
		filepath.Join(dir, netName(netFile)+ExtClusters))
}

func execRandcommuns(p *pool.ExecPool, netFile string, asym bool, timeout time.Duration) (int, error) {
	dir, err := outDir("randcommuns")
	if err != nil {
		return 0, err
	}
	// Ground-truth communities of the instance sit next to the network.
	gt := strings.TrimSuffix(netFile, filepath.Ext(netFile)) + ExtClusters
	return submitApp(p, "randcommuns", netFile, timeout,
		pyExec, "./randcommuns.py", "-g", fromAlgs(gt), "-i", fromAlgs(netFile), "-o", dir)
}

// MaxRunPhase caps the global waiting time of the app execution phase.
const MaxRunPhase = 5 * 24 * time.Hour

// RunApps runs the selected (or all) algorithms on every target network and
// waits for the pool to drain. Unknown algorithm names are reported and
// skipped.
func RunApps(p *pool.ExecPool, algorithms []string, dirs, files []NetLoc, jobTimeout time.Duration) error {
	selected := algorithms
	if len(selected) == 0 {
		selected = AppNames()
	}

	jobs, nets := 0, 0
	run := func(netFile string, asym bool) {
		submitted := 0
		for _, alg := range selected {
			app, ok := Apps[alg]
			if !ok {
				log.WithFields(log.Fields{"algorithm": alg}).Error("Unknown algorithm, skipped")
				continue
			}
			n, err := app(p, netFile, asym, jobTimeout)
			if err != nil {
				log.WithFields(log.Fields{"algorithm": alg, "net": netFile, "error": err}).
					Error("Could not submit algorithm jobs")
				continue
			}
			submitted += n
		}
		jobs += submitted
		if submitted > 0 {
			nets++
		}
	}

	for _, d := range dirs {
		for _, net := range netsInDir(d.Path) {
			run(net, d.Asym)
		}
	}
	for _, f := range files {
		run(f.Path, f.Asym)
	}

	var timeLimit time.Duration
	if jobTimeout > 0 {
		timeLimit = time.Duration(jobs) * jobTimeout
		if timeLimit > MaxRunPhase {
			timeLimit = MaxRunPhase
		}
	}
	log.WithFields(log.Fields{
		"jobs":     jobs,
		"networks": nets,
		"limit":    pool.FmtHMS(timeLimit),
	}).Info("Waiting for the algorithms execution")
	if err := p.Join(timeLimit); err != nil {
		log.WithFields(log.Fields{"error": err}).Error("Apps execution did not drain cleanly")
	}
	log.WithFields(log.Fields{"summary": p.Summary().String()}).Info("Apps execution is completed")
	return nil
}
