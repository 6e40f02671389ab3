package execers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumais/hicbem/pool/execer"
)

func TestSimComplete(t *testing.T) {
	ex := NewSimExecer()
	p, err := ex.Exec(execer.Command{Argv: []string{"complete 0"}})
	require.NoError(t, err)
	st := p.Wait()
	assert.Equal(t, execer.COMPLETE, st.State)
	assert.Equal(t, 0, st.ExitCode)

	p, err = ex.Exec(execer.Command{Argv: []string{"complete 4"}})
	require.NoError(t, err)
	st = p.Wait()
	assert.Equal(t, execer.COMPLETE, st.State)
	assert.Equal(t, 4, st.ExitCode)
}

func TestSimParseErrors(t *testing.T) {
	ex := NewSimExecer()
	_, err := ex.Exec(execer.Command{Argv: []string{"explode"}})
	assert.Error(t, err)
	_, err = ex.Exec(execer.Command{Argv: []string{"sleep onesec"}})
	assert.Error(t, err)
	_, err = ex.Exec(execer.Command{Argv: []string{"complete zero"}})
	assert.Error(t, err)
}

func TestSimAbortInterrupts(t *testing.T) {
	ex := NewSimExecer()
	p, err := ex.Exec(execer.Command{Argv: []string{"pause", "complete 0"}})
	require.NoError(t, err)
	st := p.Abort(time.Second)
	assert.Equal(t, execer.FAILED, st.State)
	assert.Equal(t, -1, st.ExitCode)
	// Wait after an abort observes the same settled status.
	assert.Equal(t, st, p.Wait())
}

func TestSimPauseResume(t *testing.T) {
	ex := NewSimExecer()
	p, err := ex.Exec(execer.Command{Argv: []string{"pause", "complete 0"}})
	require.NoError(t, err)
	ex.Resume()
	st := p.Wait()
	assert.Equal(t, execer.COMPLETE, st.State)
	assert.Equal(t, 0, st.ExitCode)
}

func TestSimTracksLiveness(t *testing.T) {
	ex := NewSimExecer()
	var procs []execer.Process
	for i := 0; i < 3; i++ {
		p, err := ex.Exec(execer.Command{Argv: []string{"pause"}, Dir: "dir"})
		require.NoError(t, err)
		procs = append(procs, p)
	}
	assert.Equal(t, 3, ex.Started())
	assert.Equal(t, 3, ex.MaxLive())
	for _, p := range procs {
		p.Kill()
	}
	assert.Equal(t, 3, ex.MaxLive(), "max liveness is a high-water mark")
	assert.Equal(t, []string{"dir", "dir", "dir"}, ex.StartedDirs())
	assert.Len(t, ex.StartTimes(), 3)
}

func TestSimIgnoresComments(t *testing.T) {
	ex := NewSimExecer()
	p, err := ex.Exec(execer.Command{Argv: []string{"#label", "complete 0"}})
	require.NoError(t, err)
	assert.Equal(t, execer.COMPLETE, p.Wait().State)
}
