// Package domain defines the vault entities and their invariants: jointly
// owned accounts, withdrawal requests, and the quorum approval state machine.
// The package is pure; persistence and sequencing live in the service and
// storage layers.
package domain
