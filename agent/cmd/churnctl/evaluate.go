package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rich1707/Customer-Churn/pkg/model"
	"github.com/rich1707/Customer-Churn/pkg/types"
)

type evaluation struct {
	Train   int           `json:"train"`
	Test    int           `json:"test"`
	Cutoff  int           `json:"tenure_cutoff"`
	Columns int           `json:"columns"`
	Metrics model.Metrics `json:"metrics"`
}

func newEvaluateCmd(a *app) *cobra.Command {
	var (
		in       input
		testFrac float64
		seed     int64
		attrs    []string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score the eligibility baseline on a stratified train/test split",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.derive(cmd.Context(), in)
			if err != nil {
				return err
			}
			ev, err := evaluateBaseline(model.Labelled(res.Records), testFrac, seed, attrs)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(ev)
			}
			m := ev.Metrics
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "train=%d test=%d columns=%d tenure_cutoff=%d\n", ev.Train, ev.Test, ev.Columns, ev.Cutoff)
			fmt.Fprintf(w, "confusion: tp=%d fp=%d tn=%d fn=%d\n", m.TP, m.FP, m.TN, m.FN)
			fmt.Fprintf(w, "accuracy=%.4f precision=%.4f recall=%.4f f1=%.4f\n", m.Accuracy, m.Precision, m.Recall, m.F1)
			return nil
		},
	}
	in.register(cmd)
	f := cmd.Flags()
	f.Float64Var(&testFrac, "test-frac", 0.3, "fraction of rows held out for testing")
	f.Int64Var(&seed, "seed", 42, "split seed")
	f.StringSliceVar(&attrs, "attrs", nil, "attribute columns to one-hot encode")
	f.BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func evaluateBaseline(records []types.DerivedRecord, testFrac float64, seed int64, attrs []string) (*evaluation, error) {
	train, test, err := model.Split(records, testFrac, seed)
	if err != nil {
		return nil, err
	}
	if len(train) == 0 || len(test) == 0 {
		return nil, fmt.Errorf("split left %d train and %d test rows; need more labelled rows", len(train), len(test))
	}

	enc := model.NewEncoder(attrs...)
	if err := enc.Fit(train); err != nil {
		return nil, err
	}
	xTrain, err := enc.Matrix(train)
	if err != nil {
		return nil, err
	}
	xTest, err := enc.Matrix(test)
	if err != nil {
		return nil, err
	}

	baseline, err := model.NewEligibilityBaseline(enc)
	if err != nil {
		return nil, err
	}
	var clf model.Classifier = baseline
	if err := clf.Fit(xTrain, model.Labels(train)); err != nil {
		return nil, err
	}
	pred, err := clf.Predict(xTest)
	if err != nil {
		return nil, err
	}
	m, err := model.Evaluate(model.Labels(test), pred)
	if err != nil {
		return nil, err
	}
	return &evaluation{
		Train:   len(train),
		Test:    len(test),
		Cutoff:  baseline.Cutoff,
		Columns: len(enc.Columns()),
		Metrics: m,
	}, nil
}
