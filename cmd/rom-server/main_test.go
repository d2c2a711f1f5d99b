package main

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rom-stream-go/internal/analysis"
	"rom-stream-go/internal/angles"
)

type nopProcessor struct{ calls int }

func (p *nopProcessor) ProcessKeypoints(context.Context, angles.Keypoints, float64, analysis.Request) (analysis.Result, error) {
	p.calls++
	return analysis.Result{}, nil
}

func TestSessionTrackerIsBounded(t *testing.T) {
	proc := &nopProcessor{}
	var m metrics
	tr := newSessionTracker(proc, &m, 3)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		for range 2 {
			_, err := tr.ProcessKeypoints(ctx, nil, 0, analysis.Request{SessionID: fmt.Sprintf("s%d", i)})
			require.NoError(t, err)
		}
	}

	assert.Equal(t, []string{"s0", "s1", "s2"}, tr.sessions())
	assert.Equal(t, 20, proc.calls)
	snap := m.snapshot()
	assert.Equal(t, uint64(20), snap["frames_ingested_total"])
	assert.Equal(t, uint64(14), snap["report_untracked_total"])
}
