// Package derive holds the churn feature derivation.
//
// DiffCharge compares the historical average monthly cost with the current
// charge ("Less" | "More" | "Same"); AbleToChurn reports whether the current
// month is a contractual exit point ("Yes" | "No"). Compute applies both to
// an Input and Record to a whole customer. All of them are pure and safe to
// call from any goroutine.
//
// Summarize folds a derived batch into types.BatchStats.
package derive
