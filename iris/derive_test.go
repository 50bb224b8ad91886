package iris

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEdgeMaskInteriorTileHasNoPreseededBits(t *testing.T) {
	mask := EdgeMask(0, 0, 4, 4, Derive2x)
	assert.Equal(t, uint32(0), mask)
}

func TestEdgeMaskOutOfGridChildrenPreseeded(t *testing.T) {
	// a 3x3 child grid means parent (1,1)'s bottom-right 2x2 quadrant
	// request lands partially outside the grid
	mask := EdgeMask(1, 1, 3, 3, Derive2x)
	assert.NotEqual(t, uint32(0), mask)
	assert.NotEqual(t, allOnesMask(Derive2x), mask)
}

func TestAllOnesMask(t *testing.T) {
	assert.Equal(t, uint32(0xF), allOnesMask(Derive2x))
	assert.Equal(t, uint32(0xFFFF), allOnesMask(Derive4x))
}

func TestChildrenPerAxis(t *testing.T) {
	assert.Equal(t, 2, childrenPerAxis(Derive2x))
	assert.Equal(t, 4, childrenPerAxis(Derive4x))
	assert.Equal(t, 2, childrenPerAxis(DeriveUseSource))
}

func TestDownsample2x(t *testing.T) {
	// a 2x2 uniform block should downsample to the same uniform value
	pixels := make([]byte, TileDim*TileDim*3)
	for i := range pixels {
		pixels[i] = 100
	}
	out := downsample(pixels, FormatR8G8B8, 2)
	assert.Len(t, out, (TileDim/2)*(TileDim/2)*3)
	for _, b := range out {
		assert.Equal(t, byte(100), b)
	}
}

func TestMergeChildCompletesOnLastSubtile(t *testing.T) {
	tracker := newTileTracker(allOnesMask(Derive2x))
	format := FormatR8G8B8
	child := make([]byte, TileDim*TileDim*format.channels())
	for i := range child {
		child[i] = 50
	}

	var lastResult MergeResult
	for sy := 0; sy < 2; sy++ {
		for sx := 0; sx < 2; sx++ {
			lastResult = tracker.MergeChild(format, sx, sy, Derive2x, child)
		}
	}
	assert.True(t, lastResult.ParentComplete)
	assert.Len(t, lastResult.Canvas, TileDim*TileDim*format.channels())
}

func TestMergeChildConcurrentDisjointSubtiles(t *testing.T) {
	tracker := newTileTracker(allOnesMask(Derive2x))
	format := FormatR8G8B8
	child := make([]byte, TileDim*TileDim*format.channels())

	var wg sync.WaitGroup
	results := make(chan MergeResult, 4)
	positions := [][2]int{{0, 0}, {1, 0}, {0, 1}, {1, 1}}
	for _, p := range positions {
		wg.Add(1)
		go func(sx, sy int) {
			defer wg.Done()
			results <- tracker.MergeChild(format, sx, sy, Derive2x, child)
		}(p[0], p[1])
	}
	wg.Wait()
	close(results)

	completions := 0
	for r := range results {
		if r.ParentComplete {
			completions++
		}
	}
	assert.Equal(t, 1, completions)
}

func TestFetchOrUint32(t *testing.T) {
	var v atomic.Uint32
	v.Store(0b0001)
	result := fetchOrUint32(&v, 0b0010)
	assert.Equal(t, uint32(0b0011), result)
	assert.Equal(t, uint32(0b0011), v.Load())
}

func TestWriteIntoCanvasPlacesBlockInQuadrant(t *testing.T) {
	canvas := make([]byte, 4*4*1)
	block := []byte{9, 9, 9, 9}
	writeIntoCanvas(canvas, 4, block, 2, 1, 1, 1)
	// subX=1, subY=1 of a 4x4 canvas split into 2x2 quadrants -> bottom-right
	assert.Equal(t, byte(9), canvas[2*4+2])
	assert.Equal(t, byte(9), canvas[2*4+3])
	assert.Equal(t, byte(9), canvas[3*4+2])
	assert.Equal(t, byte(9), canvas[3*4+3])
	assert.Equal(t, byte(0), canvas[0])
}
