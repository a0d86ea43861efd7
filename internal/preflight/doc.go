// Package preflight provides readiness checks for the filesystem paths and
// credentials recap depends on.
//
// The daemon runs RunAll at startup and logs failing checks as warnings so
// operators see misconfiguration before the first job fails. The CLI
// "recap status" command renders the same results in its Paths section.
package preflight
