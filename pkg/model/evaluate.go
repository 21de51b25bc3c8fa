package model

import "fmt"

// Metrics is the confusion matrix of a binary prediction and the scores
// derived from it. A score whose denominator is zero is reported as 0.
type Metrics struct {
	TP int `json:"tp"`
	FP int `json:"fp"`
	TN int `json:"tn"`
	FN int `json:"fn"`

	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// Evaluate compares predictions with the true labels. Values >= 0.5 count as
// the positive (churn) class.
func Evaluate(yTrue, yPred []float64) (Metrics, error) {
	var m Metrics
	if len(yTrue) != len(yPred) {
		return m, fmt.Errorf("model: %d labels but %d predictions", len(yTrue), len(yPred))
	}
	for i := range yTrue {
		actual, predicted := yTrue[i] >= 0.5, yPred[i] >= 0.5
		switch {
		case actual && predicted:
			m.TP++
		case !actual && predicted:
			m.FP++
		case !actual && !predicted:
			m.TN++
		default:
			m.FN++
		}
	}

	m.Accuracy = ratio(m.TP+m.TN, len(yTrue))
	m.Precision = ratio(m.TP, m.TP+m.FP)
	m.Recall = ratio(m.TP, m.TP+m.FN)
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	return m, nil
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
