// Package security holds the name rules and size limits shared by the runner,
// the orchestrator and run history.
//
// Import paths and function names are validated before any registry lookup or
// process spawn. Frames are read with a size cap, and error traces are cleaned
// of control characters before they are stored.
package security
