package perf

import (
	"math"
)

const LogarithmicRegression_PredictionType = "log-reg"

// RewardPrediction extrapolates the mean-reward and loss curves over epochs,
// used to estimate how many more epochs a run needs to hit a target reward.
type RewardPrediction struct {
	regressionFunctionRewards Regression
	regressionFunctionLosses  Regression
}

func NewRewardPrediction(rewards []float64, losses []float64, predictionType string, offset int) (*RewardPrediction, error) {
	rp := &RewardPrediction{}

	rewardXs, rewardYs := prepareXAndY(rewards, offset)
	lossXs, lossYs := prepareXAndY(losses, offset)

	if predictionType == LogarithmicRegression_PredictionType {
		regressionRewards, err := NewLogarithmicRegression(rewardXs, rewardYs)
		if err != nil {
			return nil, err
		}
		regressionLosses, err := NewLogarithmicRegression(lossXs, lossYs)
		if err != nil {
			return nil, err
		}
		rp.regressionFunctionRewards = regressionRewards
		rp.regressionFunctionLosses = regressionLosses
	}

	return rp, nil
}

func (rp *RewardPrediction) PredictReward(epoch int32) float64 {
	return rp.regressionFunctionRewards.PredictY(float64(epoch))
}

func (rp *RewardPrediction) PredictEpochForReward(reward float64) int32 {
	predictedEpochFloat64 := math.Ceil(rp.regressionFunctionRewards.PredictX(reward))

	return int32(predictedEpochFloat64)
}

func (rp *RewardPrediction) PredictLoss(epoch int32) float64 {
	return rp.regressionFunctionLosses.PredictY(float64(epoch))
}

func (rp *RewardPrediction) PrintPrediction() string {
	return rp.regressionFunctionRewards.PrintFunction()
}

func prepareXAndY(values []float64, offset int) ([]float64, []float64) {
	xs := make([]float64, len(values))
	ys := make([]float64, len(values))

	for i, value := range values {
		xs[i] = float64(i + 1 + offset)
		ys[i] = value
	}

	return xs, ys
}
