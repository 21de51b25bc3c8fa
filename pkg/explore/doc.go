// Package explore computes the group-by summaries of a churn analysis:
// churn rate, charges and tenure per contract, per derived label, per tenure
// band, or per any attribute column.
package explore
