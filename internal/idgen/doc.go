// Package idgen wraps the UUID generator used for process instance, token
// and task identifiers so that tests can stub it. Callers treat identifiers
// as opaque strings.
package idgen
