// Package storage defines the store interfaces the vault engine persists
// through. Implementations live in subpackages: bbolt provides the durable
// registry, memory an in-process one for tests and development.
package storage
