// Command hicbem drives the clustering benchmark: it optionally generates
// synthetic networks, shuffles and converts datasets, runs the clustering
// algorithms under resource tracing, and evaluates their results. External
// termination signals tear the execution pool down before exit so no child
// processes are orphaned.
package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lumais/hicbem/bench"
	"github.com/lumais/hicbem/common/log/hooks"
	"github.com/lumais/hicbem/common/stats"
	"github.com/lumais/hicbem/pool"
	poolos "github.com/lumais/hicbem/pool/execer/os"
)

type benchCmd struct {
	genMode      string
	instances    int
	shuffles     int
	syntDir      string
	convMode     string
	resolveDups  bool
	runApps      bool
	evalNMI      bool
	evalMod      bool
	datasets     []string
	asymDatasets []string
	genDirs      bool
	timeout      time.Duration
	algorithms   []string
	workers      int
	logLevel     string
}

func main() {
	log.AddHook(hooks.NewContextHook())

	c := &benchCmd{}
	rootCmd := &cobra.Command{
		Use:   "hicbem",
		Short: "hicbem benchmarks overlapping hierarchical clustering algorithms",
		Long: "hicbem generates synthetic networks with ground-truth communities (LFR),\n" +
			"runs clustering algorithms on them and on real-world datasets under\n" +
			"resource tracing, and evaluates the results (overlapping NMI, modularity).",
		RunE: c.run,
	}
	flags := rootCmd.Flags()
	flags.StringVar(&c.genMode, "generate", "off", "synthetic network generation: off|missing|force")
	flags.IntVar(&c.instances, "instances", 5, "instances of each synthetic network type")
	flags.IntVar(&c.shuffles, "shuffles", 0, "shuffles to produce per network instance")
	flags.StringVar(&c.syntDir, "syntdir", bench.DefaultSyntDir, "base directory for the synthetic datasets")
	flags.StringVar(&c.convMode, "convert", "off", "network format conversion: off|missing|force")
	flags.BoolVar(&c.resolveDups, "resolve-dups", false, "resolve duplicated links on conversion")
	flags.BoolVar(&c.runApps, "run", false, "run the benchmarked algorithms on the prepared data")
	flags.BoolVar(&c.evalNMI, "eval-nmi", false, "evaluate result accuracy with overlapping NMI measures")
	flags.BoolVar(&c.evalMod, "eval-mod", false, "evaluate result quality by modularity")
	flags.StringArrayVar(&c.datasets, "dataset", nil, "dataset file or dir with symmetric links, may contain wildcards (repeatable)")
	flags.StringArrayVar(&c.asymDatasets, "asym-dataset", nil, "dataset file or dir with asymmetric links (repeatable)")
	flags.BoolVar(&c.genDirs, "gen-dirs", false, "generate a dir per input network and hard-link the origin inside")
	flags.DurationVar(&c.timeout, "timeout", 0, "timeout per single algorithm execution (0 = unbounded)")
	flags.StringSliceVar(&c.algorithms, "algorithms", nil, "algorithms to benchmark (default: all of "+appList()+")")
	flags.IntVar(&c.workers, "workers", 0, "max concurrently running jobs (default: CPUs-1)")
	flags.StringVar(&c.logLevel, "log-level", "info", "logging level")

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func appList() string {
	names := bench.AppNames()
	res := ""
	for i, n := range names {
		if i > 0 {
			res += " "
		}
		res += n
	}
	return res
}

func (c *benchCmd) run(cmd *cobra.Command, args []string) error {
	if level, err := log.ParseLevel(c.logLevel); err == nil {
		log.SetLevel(level)
	} else {
		return err
	}
	cfg, err := c.config()
	if err != nil {
		return err
	}

	stat := stats.NewReceiver()
	p := pool.New(pool.Config{
		Capacity: c.workers,
		Execer:   poolos.NewExecer(),
		Stat:     stat.Scope("pool"),
	})

	// Route external termination into pool teardown before this process is
	// allowed to exit, so no child processes are orphaned.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP,
		syscall.SIGQUIT, syscall.SIGABRT)
	go func() {
		sig := <-sigCh
		log.WithFields(log.Fields{"signal": sig}).Warn("Interrupted, tearing down the execution pool")
		p.Teardown()
		os.Exit(1)
	}()

	err = bench.Run(cfg, p)
	log.Info("Stats:\n" + stat.Render())
	p.Teardown()
	return err
}

func (c *benchCmd) config() (bench.Config, error) {
	cfg := bench.Config{
		GenInstances: c.instances,
		ShuffleCount: c.shuffles,
		SyntDir:      c.syntDir,
		ResolveDups:  c.resolveDups,
		RunApps:      c.runApps,
		Timeout:      c.timeout,
		Algorithms:   c.algorithms,
	}
	switch c.genMode {
	case "off":
		cfg.Gen = bench.GenOff
	case "missing":
		cfg.Gen = bench.GenMissing
	case "force":
		cfg.Gen = bench.GenForce
	default:
		return cfg, errors.Errorf("--generate must be one of off|missing|force, got %q", c.genMode)
	}
	switch c.convMode {
	case "off":
		cfg.Conv = bench.ConvOff
	case "missing":
		cfg.Conv = bench.ConvMissing
	case "force":
		cfg.Conv = bench.ConvForce
	default:
		return cfg, errors.Errorf("--convert must be one of off|missing|force, got %q", c.convMode)
	}
	if c.evalNMI {
		cfg.EvalFlags |= bench.EvalNMI
	}
	if c.evalMod {
		cfg.EvalFlags |= bench.EvalMod
	}
	for _, d := range c.datasets {
		cfg.Datasets = append(cfg.Datasets, bench.NetSpec{Path: d, GenDirs: c.genDirs})
	}
	for _, d := range c.asymDatasets {
		cfg.Datasets = append(cfg.Datasets, bench.NetSpec{Path: d, Asym: true, GenDirs: c.genDirs})
	}
	return cfg, nil
}
