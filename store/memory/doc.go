// Package memory provides an in-memory UserStore implementation.
//
// It exists for tests and single-process deployments. All methods honor the
// atomicity contracts of the UserStore interface by serializing mutations
// behind one mutex; crucially RecordLoginFailure performs its
// read-modify-write under that lock so concurrent failures never lose an
// increment.
//
// # Architecture boundaries
//
// This package must NOT reach into the engine. It only implements the
// UserStore contract and returns the root package's sentinel errors.
package memory
