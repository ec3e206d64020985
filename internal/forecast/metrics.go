package forecast

import (
	"math"
)

// Metrics are the holdout evaluation results of a fitted segment model.
type Metrics struct {
	MAE  float64 `json:"mae" msgpack:"mae"`
	RMSE float64 `json:"rmse" msgpack:"rmse"`
	R2   float64 `json:"r2" msgpack:"r2"`
	MAPE float64 `json:"mape" msgpack:"mape"`
}

// mapeEpsilon guards the percentage error against zero actuals.
const mapeEpsilon = 1e-8

// Evaluate computes MAE, RMSE, R² and MAPE for predictions against
// actuals.
func Evaluate(actual, predicted []float64) Metrics {
	n := len(actual)
	if n == 0 || n != len(predicted) {
		return Metrics{}
	}

	var absSum, sqSum, mapeSum float64
	for i := range actual {
		d := actual[i] - predicted[i]
		absSum += math.Abs(d)
		sqSum += d * d
		mapeSum += math.Abs(d / (actual[i] + mapeEpsilon))
	}

	m := Metrics{
		MAE:  absSum / float64(n),
		RMSE: math.Sqrt(sqSum / float64(n)),
		MAPE: mapeSum / float64(n) * 100,
	}

	yMean := mean(actual)
	var ssTot float64
	for _, y := range actual {
		d := y - yMean
		ssTot += d * d
	}
	if ssTot > 0 {
		m.R2 = 1 - sqSum/ssTot
	}
	return m
}
