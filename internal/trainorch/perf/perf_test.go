package perf

import (
	"math"
	"testing"
	"time"
)

func TestLogarithmicRegressionExactFit(t *testing.T) {
	// samples generated from y = 2 + 3 * ln(x+1)
	xs := []float64{1, 2, 3, 4, 5, 10, 20}
	ys := make([]float64, len(xs))
	for i, x := range xs {
		ys[i] = 2 + 3*math.Log(x+1)
	}

	lr, err := NewLogarithmicRegression(xs, ys)
	if err != nil {
		t.Fatalf("NewLogarithmicRegression failed: %v", err)
	}

	predicted := lr.PredictY(7)
	expected := 2 + 3*math.Log(8)
	if math.Abs(predicted-expected) > 1e-9 {
		t.Errorf("PredictY(7): expected %f, got %f", expected, predicted)
	}

	// PredictX must invert PredictY
	x := lr.PredictX(expected)
	if math.Abs(x-7) > 1e-6 {
		t.Errorf("PredictX: expected 7, got %f", x)
	}
}

func TestLogarithmicRegressionNeedsTwoSamples(t *testing.T) {
	if _, err := NewLogarithmicRegression([]float64{1}, []float64{5}); err == nil {
		t.Error("Expected an error for a single sample")
	}
	if _, err := NewLogarithmicRegression([]float64{1, 2}, []float64{5}); err == nil {
		t.Error("Expected an error for mismatched sample lengths")
	}
}

func TestRewardPrediction(t *testing.T) {
	// rewards at epochs 1..20 following f(e) = -5 + 8 * ln(e+1)
	rewards := make([]float64, 20)
	losses := make([]float64, 20)
	for i := range rewards {
		epoch := float64(i + 1)
		rewards[i] = -5 + 8*math.Log(epoch+1)
		losses[i] = 3/epoch + 0.05
	}

	rp, err := NewRewardPrediction(rewards, losses, LogarithmicRegression_PredictionType, 0)
	if err != nil {
		t.Fatalf("NewRewardPrediction failed: %v", err)
	}

	predicted := rp.PredictReward(10)
	expected := -5 + 8*math.Log(11)
	if math.Abs(predicted-expected) > 1e-9 {
		t.Errorf("PredictReward(10): expected %f, got %f", expected, predicted)
	}

	// target between the epoch 9 and epoch 10 rewards rounds up to epoch 10
	target := -5 + 8*math.Log(10.5+1)
	epoch := rp.PredictEpochForReward(target)
	if epoch != 11 {
		t.Errorf("PredictEpochForReward: expected epoch 11, got %d", epoch)
	}
}

func TestTrackerThroughput(t *testing.T) {
	tracker := NewTracker(10000, 5)

	tracker.RecordEpoch(2 * time.Second)
	tracker.RecordEpoch(4 * time.Second)

	if tracker.NumRecorded() != 2 {
		t.Errorf("Expected 2 recorded epochs, got %d", tracker.NumRecorded())
	}

	// (10000/2 + 10000/4) / 2
	expected := 3750.0
	if math.Abs(tracker.MeanStepsPerSecond()-expected) > 1e-9 {
		t.Errorf("Expected mean %f steps/s, got %f", expected, tracker.MeanStepsPerSecond())
	}
}

func TestTrackerIgnoresZeroDurations(t *testing.T) {
	tracker := NewTracker(100, 1)

	tracker.RecordEpoch(0)

	if tracker.NumRecorded() != 0 {
		t.Errorf("Zero duration should not be recorded, got %d samples", tracker.NumRecorded())
	}
	if tracker.MeanStepsPerSecond() != 0 {
		t.Errorf("Empty tracker should report 0 steps/s")
	}
}
