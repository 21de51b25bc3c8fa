// Package model is the harness a churn classifier plugs into.
//
// Encoder builds a gonum design matrix from derived records (numeric charges
// and tenure plus one-hot contract, derived labels and chosen attributes).
// Split makes a seeded, stratified train/test split. Classifier is the
// interface a model implements; EligibilityBaseline is a rule model built on
// the able_to_churn signal. Evaluate scores predictions with a confusion
// matrix, accuracy, precision, recall and F1.
package model
