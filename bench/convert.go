package bench

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/lumais/hicbem/pool"
)

const (
	pyExec        = "python"
	convertScript = "3dparty/tohig.py"

	convertTimeout = 3 * time.Minute
	// DefaultConvertGlobalTimeout bounds the whole conversion phase.
	DefaultConvertGlobalTimeout = 30 * time.Minute
)

// ConvertNet submits the conversion of one network into the .hig format.
// resolveDups removes duplicated links during the conversion.
func ConvertNet(p *pool.ExecPool, netPath string, asym, overwrite, resolveDups bool) error {
	fmtArg := "-f=nse"
	if asym {
		fmtArg = "-f=nsa"
	}
	ovArg := "-os" // skip existing output
	if overwrite {
		ovArg = "-of"
	}
	argv := []string{pyExec, convertScript, netPath, fmtArg, ovArg}
	if resolveDups {
		argv = append(argv, "-r")
	}
	return p.Execute(&pool.Job{
		Name:    "conv_" + netName(netPath),
		Argv:    argv,
		Timeout: convertTimeout,
	})
}

// ConvertNets converts every original (non-shuffle) network in the dir and
// returns the number of submitted conversions. Shuffles reuse the converted
// base network.
func ConvertNets(p *pool.ExecPool, dir string, asym, overwrite, resolveDups bool) int {
	count := 0
	for _, net := range netsInDir(dir) {
		if isShuffle(net) {
			continue
		}
		if err := ConvertNet(p, net, asym, overwrite, resolveDups); err != nil {
			log.WithFields(log.Fields{"net": net, "error": err}).Error("Could not submit conversion, the network is skipped")
			continue
		}
		count++
	}
	return count
}
