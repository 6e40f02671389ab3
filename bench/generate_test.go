package bench

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewGenOpts(t *testing.T) {
	o := newGenOpts(1000, 5, "1K5")
	assert.Equal(t, 1000, o.nodes)
	assert.Equal(t, 5, o.k)
	assert.Equal(t, 32, o.maxk, "max degree is the rounded square root of N")
	assert.Equal(t, 0.275, o.mut)
	assert.InDelta(t, 0.1833, o.muw, 0.0001)
	assert.Equal(t, 6, o.minc)
	assert.Equal(t, 333, o.maxc)
	assert.Equal(t, 75, o.on, "overlapping nodes are N*mut^2")
	assert.Equal(t, 2, o.om)
	assert.Equal(t, 1, o.cnl)
	assert.Equal(t, "1K5", o.name)

	o = newGenOpts(50000, 10, "50K10")
	assert.Equal(t, 224, o.maxk)
	assert.Equal(t, 55, o.minc)
	assert.Equal(t, 16666, o.maxc)
	assert.Equal(t, 3781, o.on)
}

func TestGenOptsRender(t *testing.T) {
	o := genOpts{
		nodes: 2000, k: 10, maxk: 45,
		mut: 0.25, muw: 0.125,
		beta: 1.35, t1: 1.65, t2: 1.3,
		minc: 7, maxc: 666, on: 125, om: 2, cnl: 1,
		name: "2K10",
	}
	rendered := o.render()
	lines := strings.Split(strings.TrimRight(rendered, "\n"), "\n")
	assert.Equal(t, []string{
		"-N 2000",
		"-k 10",
		"-maxk 45",
		"-mut 0.25",
		"-muw 0.125",
		"-beta 1.35",
		"-t1 1.65",
		"-t2 1.3",
		"-minc 7",
		"-maxc 666",
		"-on 125",
		"-om 2",
		"-cnl 1",
		"-name 2K10",
	}, lines)
}

func TestTraced(t *testing.T) {
	argv := Traced("1K5#2", "lfrbench.rcp", "./lfrbench", "-f", "params/1K5.ngp")
	assert.Equal(t, []string{
		TracerBin, "-n=1K5#2", "-o=lfrbench.rcp",
		"./lfrbench", "-f", "params/1K5.ngp",
	}, argv)
}
