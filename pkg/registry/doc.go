// Package registry provides the function registry the runner resolves job
// descriptors against.
//
// Functions are registered under a two-part key: the unit (import path) and
// the function name. Registration normally happens in init() of the package
// that defines the functions, so a runner binary knows every callable it can
// serve before it reads its first descriptor:
//
//	func init() {
//	    registry.MustRegister("library.main", "handler", handler)
//	}
//
// Most users should import the root package github.com/jdziat/protoflow
// which re-exports Register and the Registry type.
package registry
