package ml

import (
	"fmt"
	"math"
)

func MSE(yTrue, yPred []float64) float64 {
	s := 0.0
	for i := range yTrue {
		d := yPred[i] - yTrue[i]
		s += d * d
	}
	return s / float64(len(yTrue))
}

func MAE(yTrue, yPred []float64) float64 {
	s := 0.0
	for i := range yTrue {
		s += math.Abs(yPred[i] - yTrue[i])
	}
	return s / float64(len(yTrue))
}

func RMSE(yTrue, yPred []float64) float64 { return math.Sqrt(MSE(yTrue, yPred)) }

// R2 is the coefficient of determination; 0 when yTrue is constant
func R2(yTrue, yPred []float64) float64 {
	m := Mean(yTrue)
	ssTot, ssRes := 0.0, 0.0
	for i := range yTrue {
		d := yTrue[i] - m
		ssTot += d * d
		r := yTrue[i] - yPred[i]
		ssRes += r * r
	}
	if ssTot == 0 {
		return 0
	}
	return 1 - ssRes/ssTot
}

// LogLoss is binary cross entropy with probabilities clipped away from 0 and 1
func LogLoss(yTrue, proba []float64) float64 {
	const eps = 1e-12
	s := 0.0
	for i := range yTrue {
		p := math.Min(math.Max(proba[i], eps), 1-eps)
		s += -(yTrue[i]*math.Log(p) + (1-yTrue[i])*math.Log(1-p))
	}
	return s / float64(len(yTrue))
}

// Threshold turns probabilities into 0/1 labels
func Threshold(proba []float64, cut float64) []float64 {
	out := make([]float64, len(proba))
	for i, p := range proba {
		if p >= cut {
			out[i] = 1
		}
	}
	return out
}

func Accuracy(yTrue, yPred []float64) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	c := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			c++
		}
	}
	return float64(c) / float64(len(yTrue))
}

// PrecisionRecallF1 for binary 0/1 labels
func PrecisionRecallF1(yTrue, yPred []float64) (prec, rec, f1 float64) {
	tp, fp, fn := 0, 0, 0
	for i := range yTrue {
		switch {
		case yPred[i] == 1 && yTrue[i] == 1:
			tp++
		case yPred[i] == 1 && yTrue[i] == 0:
			fp++
		case yPred[i] == 0 && yTrue[i] == 1:
			fn++
		}
	}
	if tp+fp > 0 {
		prec = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		rec = float64(tp) / float64(tp+fn)
	}
	if prec+rec > 0 {
		f1 = 2 * prec * rec / (prec + rec)
	}
	return
}

// RegressionReport computes mse, rmse, mae and r2
func RegressionReport(yTrue, yPred []float64) (map[string]float64, error) {
	if err := sameLength(yTrue, yPred); err != nil {
		return nil, err
	}
	mse := MSE(yTrue, yPred)
	return map[string]float64{
		"mse":  mse,
		"rmse": math.Sqrt(mse),
		"mae":  MAE(yTrue, yPred),
		"r2":   R2(yTrue, yPred),
	}, nil
}

// ClassificationReport computes accuracy, precision, recall and f1 after
// cutting probabilities at threshold
func ClassificationReport(yTrue, proba []float64, threshold float64) (map[string]float64, error) {
	if err := sameLength(yTrue, proba); err != nil {
		return nil, err
	}
	pred := Threshold(proba, threshold)
	prec, rec, f1 := PrecisionRecallF1(yTrue, pred)
	return map[string]float64{
		"accuracy":  Accuracy(yTrue, pred),
		"precision": prec,
		"recall":    rec,
		"f1":        f1,
	}, nil
}

func sameLength(a, b []float64) error {
	if len(a) == 0 {
		return ErrEmpty
	}
	if len(a) != len(b) {
		return fmt.Errorf("%w: %d targets, %d predictions", ErrLengthMismatch, len(a), len(b))
	}
	return nil
}
