package perf

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Tracker accumulates throughput statistics across optimization epochs: the
// training batch size divided by wall-clock epoch duration gives the
// environment steps consumed per second.
type Tracker struct {
	batchSize     int32
	numIters      int32
	stepsPerSec   []float64
	epochDuration []float64
}

func NewTracker(batchSize int32, numIters int32) *Tracker {
	return &Tracker{
		batchSize:     batchSize,
		numIters:      numIters,
		stepsPerSec:   []float64{},
		epochDuration: []float64{},
	}
}

func (tracker *Tracker) RecordEpoch(duration time.Duration) {
	seconds := duration.Seconds()
	if seconds <= 0 {
		return
	}
	tracker.epochDuration = append(tracker.epochDuration, seconds)
	tracker.stepsPerSec = append(tracker.stepsPerSec, float64(tracker.batchSize)/seconds)
}

func (tracker *Tracker) NumRecorded() int {
	return len(tracker.stepsPerSec)
}

func (tracker *Tracker) MeanStepsPerSecond() float64 {
	if len(tracker.stepsPerSec) == 0 {
		return 0
	}
	return stat.Mean(tracker.stepsPerSec, nil)
}

func (tracker *Tracker) StdDevStepsPerSecond() float64 {
	if len(tracker.stepsPerSec) < 2 {
		return 0
	}
	return stat.StdDev(tracker.stepsPerSec, nil)
}

func (tracker *Tracker) Summary() string {
	return fmt.Sprintf("iters: %d/%d | mean throughput: %.0f steps/s (stddev %.0f)",
		len(tracker.stepsPerSec), tracker.numIters, tracker.MeanStepsPerSecond(), tracker.StdDevStepsPerSecond())
}
