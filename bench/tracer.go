package bench

// Executions are wrapped with the exectime profiler, which records CPU
// (user, kernel) and peak RSS statistics of the traced command into a .rcp
// side file next to the other results. The execution pool treats the
// resulting argv as an opaque command line.
const (
	// TracerBin is resolved relative to the job's working directory.
	TracerBin = "../exectime"
	// ExtResources is the extension of the tracer's report files.
	ExtResources = ".rcp"
)

// Traced prepends the resource tracer to a command line. name labels the
// measurement, reportFile is where the tracer appends its statistics.
func Traced(name, reportFile string, argv ...string) []string {
	traced := make([]string, 0, len(argv)+3)
	traced = append(traced, TracerBin, "-n="+name, "-o="+reportFile)
	return append(traced, argv...)
}
