// Package progress keeps aggregated activity counters for a single process
// instance. The tracker travels in the instance context so service
// activities can read it with FromContext.
package progress
