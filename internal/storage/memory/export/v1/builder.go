package v1

import (
	"sort"

	"github.com/drlrcc/torcs-driver/pkg/core"
)

// Build assembles the dataset for an episode. Samples are ordered by step.
func Build(e core.Episode, samples []core.Sample) Dataset {
	out := Dataset{
		Version:   Version,
		EpisodeID: e.ID,
		Number:    e.Number,
		Track:     e.Track,
		Policy:    e.Policy,
		Model:     e.Model,
		StartTime: e.StartTime,
		EndTime:   e.EndTime,
		Steps:     e.Steps,
		Reason:    e.Reason,
		Settings:  e.Settings,
		Frame: FrameInfo{
			Width:    core.FrameWidth,
			Height:   core.FrameHeight,
			Channels: core.FrameChannels,
		},
		Samples: make([]Sample, 0, len(samples)),
	}

	for _, s := range samples {
		out.Samples = append(out.Samples, Sample{Step: s.Step, Steer: s.Steer, Frame: s.Frame})
	}
	sort.SliceStable(out.Samples, func(i, j int) bool {
		return out.Samples[i].Step < out.Samples[j].Step
	})
	return out
}
