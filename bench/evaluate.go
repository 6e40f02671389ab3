package bench

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/lumais/hicbem/pool"
)

// Evaluation measure flags.
const (
	EvalNMI = 1 << iota
	EvalMod
	EvalAll = EvalNMI | EvalMod
)

const extResults = ".res"

// measure binds an evaluation callback prefix to the extension of its base
// (ground-truth or input) files.
type measure struct {
	name    string
	baseExt string
}

var evalMeasures = []struct {
	flag int
	measure
}{
	{EvalNMI, measure{"nmi", ExtClusters}},
	{EvalMod, measure{"mod", ExtHig}},
}

// evalArgv builds the evaluator command for one algorithm result. The
// clusters argument is relative to AlgsDir.
func evalArgv(m, baseFile, clusters string) []string {
	switch m {
	case "nmi":
		// NMI for overlapping communities (gecmi).
		return []string{"./gecmi", fromAlgs(baseFile), clusters}
	case "nmi-s":
		// Alternative overlapping NMI (onmi) for cross-checking.
		return []string{"./onmi", fromAlgs(baseFile), clusters}
	case "mod":
		return []string{"./hirecs", "-e=" + clusters, fromAlgs(baseFile)}
	}
	return nil
}

// evalAlgorithm submits the evaluation of one algorithm's clustering of one
// base file; the evaluator's stdout is captured into a per-network .res
// file under the algorithm's output dir.
func evalAlgorithm(p *pool.ExecPool, alg, baseFile, m string, timeout time.Duration) error {
	name := netName(baseFile)
	dir, err := outDir(alg)
	if err != nil {
		return err
	}
	clusters := filepath.Join(dir, name+ExtClusters)
	argv := evalArgv(m, baseFile, clusters)
	if argv == nil {
		return errors.Errorf("unknown evaluation measure %q", m)
	}

	resFile := filepath.Join(AlgsDir, dir, name+"."+m+extResults)
	out, err := os.Create(resFile)
	if err != nil {
		return errors.Wrapf(err, "creating result file for %s/%s", alg, m)
	}
	job := &pool.Job{
		Name:    strings.Join([]string{alg, m, name}, "_"),
		Workdir: AlgsDir,
		Argv:    argv,
		Timeout: timeout,
		Stdout:  out,
		OnDone: func(*pool.Job) error {
			return out.Close()
		},
	}
	if err := p.Execute(job); err != nil {
		out.Close()
		os.Remove(resFile)
		return err
	}
	return nil
}

// EvalResults evaluates the quality of the algorithms' results with the
// requested measures and, once the pool has drained, aggregates the values
// from the produced result files. Reading before Join returns would observe
// partial files, so the drain is the only gate.
func EvalResults(p *pool.ExecPool, flags int, algorithms []string, dirs, files []NetLoc, jobTimeout, execTime time.Duration) error {
	if flags == 0 {
		return errors.New("no evaluation measures requested")
	}
	selected := algorithms
	if len(selected) == 0 {
		selected = AppNames()
	}

	jobs := 0
	for _, em := range evalMeasures {
		if flags&em.flag == 0 {
			continue
		}
		log.WithFields(log.Fields{"measure": em.name}).Info("Starting evaluation")

		evaluate := func(baseFile string) {
			for _, alg := range selected {
				if _, ok := Apps[alg]; !ok {
					log.WithFields(log.Fields{"algorithm": alg}).Error("Unknown algorithm, skipped")
					continue
				}
				ms := []string{em.name}
				if em.name == "nmi" {
					ms = append(ms, "nmi-s")
				}
				for _, m := range ms {
					if err := evalAlgorithm(p, alg, baseFile, m, jobTimeout); err != nil {
						log.WithFields(log.Fields{
							"algorithm": alg, "base": baseFile, "measure": m, "error": err,
						}).Error("Could not submit evaluation")
						continue
					}
					jobs++
				}
			}
		}

		for _, d := range dirs {
			bases, _ := filepath.Glob(d.Path + "*" + em.baseExt)
			for _, base := range bases {
				evaluate(base)
			}
		}
		for _, f := range files {
			base := strings.TrimSuffix(f.Path, filepath.Ext(f.Path)) + em.baseExt
			if !exists(base) {
				log.WithFields(log.Fields{"base": base}).Warn("No base file for evaluation")
				continue
			}
			evaluate(base)
		}
	}

	var timeLimit time.Duration
	if jobTimeout > 0 {
		timeLimit = time.Duration(jobs) * jobTimeout
		if timeLimit > MaxRunPhase {
			timeLimit = MaxRunPhase
		}
		// Give at least twice the time the algorithms themselves took.
		if lim := 2 * execTime; lim > timeLimit {
			timeLimit = lim
		}
	}
	if err := p.Join(timeLimit); err != nil {
		log.WithFields(log.Fields{"error": err}).Error("Evaluation did not drain cleanly")
	}

	reportEvalResults(flags, selected)
	return nil
}

// reportEvalResults parses the .res files produced in this run and logs the
// per-algorithm averages of each measure.
func reportEvalResults(flags int, algorithms []string) {
	for _, em := range evalMeasures {
		if flags&em.flag == 0 {
			continue
		}
		ms := []string{em.name}
		if em.name == "nmi" {
			ms = append(ms, "nmi-s")
		}
		for _, m := range ms {
			for _, alg := range algorithms {
				mean, count, err := AggregateRes(alg, m)
				if err != nil {
					log.WithFields(log.Fields{"algorithm": alg, "measure": m, "error": err}).
						Warn("Could not aggregate results")
					continue
				}
				if count == 0 {
					continue
				}
				log.WithFields(log.Fields{
					"algorithm": alg,
					"measure":   m,
					"networks":  count,
				}).Infof("Average %s: %.6f", m, mean)
			}
		}
	}
}

// ParseResValue extracts the measure value from an evaluator's output: the
// first token that parses as a float, allowing for "name: value" forms.
func ParseResValue(r io.Reader) (float64, error) {
	scanner := bufio.NewScanner(r)
	scanner.Split(bufio.ScanWords)
	for scanner.Scan() {
		tok := scanner.Text()
		if i := strings.LastIndex(tok, ":"); i >= 0 {
			tok = tok[i+1:]
		}
		if tok == "" {
			continue
		}
		if v, err := strconv.ParseFloat(tok, 64); err == nil {
			return v, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return 0, errors.New("no measure value found")
}

// AggregateRes averages the measure over all result files of an algorithm.
func AggregateRes(alg, m string) (mean float64, count int, err error) {
	pattern := filepath.Join(AlgsDir, alg+"outp", "*."+m+extResults)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "globbing %q", pattern)
	}
	sum := 0.0
	for _, path := range matches {
		f, err := os.Open(path)
		if err != nil {
			log.WithFields(log.Fields{"file": path, "error": err}).Warn("Unreadable result file")
			continue
		}
		v, perr := ParseResValue(f)
		f.Close()
		if perr != nil {
			log.WithFields(log.Fields{"file": path, "error": perr}).Warn("Unparsable result file")
			continue
		}
		sum += v
		count++
	}
	if count == 0 {
		return 0, 0, nil
	}
	return sum / float64(count), count, nil
}
