// Package core provides the fundamental types and interfaces for protoflow.
//
// This package contains:
//   - JobDescriptor and ResultEnvelope, the two wire messages of the runner protocol
//   - Run and Function data models with GORM annotations
//   - RunStore interface defining the run history contract
//   - The runner error taxonomy (configuration, decode, resolution, invocation)
//
// Most users should import the root package github.com/jdziat/protoflow
// instead of this package directly.
package core
