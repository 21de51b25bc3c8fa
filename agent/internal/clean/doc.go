// Package clean turns raw ingest tables into typed customer records.
//
// It resolves the four columns the derivation needs (tenure, monthly charges,
// total charges, contract) by header name, ignoring case, spaces and
// underscores, so both the Telco spreadsheet headers and snake_case exports
// work. Configured drop columns (leakage such as Churn Score, CLTV and Churn
// Reason, plus geography) are kept out of Customer.Attributes.
//
// Zero-tenure rows get total_charges forced to 0; a blank total on any other
// row is rejected. Negative or unparseable numbers are rejected at this
// boundary so the derivation functions never have to validate.
package clean
