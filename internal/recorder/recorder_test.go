package recorder

import (
	"errors"
	"testing"

	"github.com/drlrcc/torcs-driver/internal/config"
	"github.com/drlrcc/torcs-driver/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSink struct {
	batches [][]core.Sample
	err     error
}

func (m *memSink) RecordSamples(s []core.Sample) error {
	if m.err != nil {
		return m.err
	}
	cp := make([]core.Sample, len(s))
	copy(cp, s)
	m.batches = append(m.batches, cp)
	return nil
}

func obsWithFrame() core.Observation {
	return core.Observation{Frame: core.FrameFromVision(make([]float64, core.FrameSize))}
}

func TestAppend_IgnoresWarmUp(t *testing.T) {
	r := New(config.RecorderConfig{IgnoreSteps: 12}, &memSink{}, nil)
	r.Reset("ep")

	taken := 0
	for tick := 0; tick < 20; tick++ {
		if r.Append(tick, obsWithFrame(), 0.1) {
			taken++
		}
	}
	assert.Equal(t, 7, taken, "ticks 13..19")
	assert.Equal(t, 7, r.Buffered())
	assert.Equal(t, 7, r.Total())
}

func TestAppend_NoFrame(t *testing.T) {
	r := New(config.RecorderConfig{}, &memSink{}, nil)
	assert.False(t, r.Append(50, core.Observation{}, 0))
}

func TestAppend_CopiesFrame(t *testing.T) {
	r := New(config.RecorderConfig{}, &memSink{}, nil)
	r.Reset("ep")
	obs := obsWithFrame()
	require.True(t, r.Append(1, obs, 0.5))
	obs.Frame.Pix[0] = 7

	assert.Equal(t, byte(255), r.buf[0].Frame[0])
	assert.Equal(t, "ep", r.buf[0].EpisodeID)
	assert.Equal(t, 0.5, r.buf[0].Steer)
}

func TestCheckpoint(t *testing.T) {
	sink := &memSink{}
	r := New(config.RecorderConfig{FlushEvery: 5}, sink, nil)
	r.Reset("ep")

	for tick := 1; tick <= 12; tick++ {
		r.Append(tick, obsWithFrame(), 0)
		require.NoError(t, r.Checkpoint(tick))
	}
	require.Len(t, sink.batches, 2)
	assert.Len(t, sink.batches[0], 5)
	assert.Equal(t, 2, r.Buffered())

	require.NoError(t, r.Flush())
	assert.Len(t, sink.batches, 3)
	assert.Equal(t, 0, r.Buffered())
	assert.Equal(t, 12, r.Total())
}

func TestCheckpoint_Disabled(t *testing.T) {
	sink := &memSink{}
	r := New(config.RecorderConfig{}, sink, nil)
	r.Append(1, obsWithFrame(), 0)
	require.NoError(t, r.Checkpoint(5000))
	assert.Empty(t, sink.batches)
}

func TestFlush_ErrorKeepsBuffer(t *testing.T) {
	sink := &memSink{err: errors.New("disk full")}
	r := New(config.RecorderConfig{}, sink, nil)
	r.Append(1, obsWithFrame(), 0)

	assert.ErrorContains(t, r.Flush(), "disk full")
	assert.Equal(t, 1, r.Buffered())

	sink.err = nil
	require.NoError(t, r.Flush())
	assert.Equal(t, 0, r.Buffered())
}

func TestFlush_Empty(t *testing.T) {
	sink := &memSink{}
	require.NoError(t, New(config.RecorderConfig{}, sink, nil).Flush())
	assert.Empty(t, sink.batches)
}

func TestReset(t *testing.T) {
	r := New(config.RecorderConfig{}, &memSink{}, nil)
	r.Reset("a")
	r.Append(1, obsWithFrame(), 0)
	r.Reset("b")
	assert.Equal(t, 0, r.Buffered())
	assert.Equal(t, 0, r.Total())
	r.Append(1, obsWithFrame(), 0)
	assert.Equal(t, "b", r.buf[0].EpisodeID)
}
