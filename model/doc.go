// Package model contains the in-memory representation of workflow
// definitions used by the procflow engine.
//
// A workflow is built programmatically with the builder methods or loaded
// from a YAML document by the workflow DAO. Activities and transitions live
// in the `graph` sub-package; ordered parameter lists in `state`.
// Definitions are validated once at registration time and are immutable
// afterwards.
package model
