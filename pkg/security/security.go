package security

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jdziat/protoflow/pkg/core"
)

const (
	// MaxNameLength bounds import paths and function names.
	MaxNameLength = 255

	// MaxRequestSize bounds one descriptor frame (16MB).
	MaxRequestSize = 16 << 20

	// MaxResponseSize bounds one envelope frame (64MB).
	MaxResponseSize = 64 << 20

	// MaxStoredPayloadSize bounds inputs and results kept in run history (1MB).
	MaxStoredPayloadSize = 1 << 20

	// MaxRetries caps orchestrator attempts per call.
	MaxRetries = 10

	// MaxErrorMessageLength caps stored error traces, in runes.
	MaxErrorMessageLength = 16384
)

var (
	// Segments separated by "." or "/", e.g. "library.main" or "pkg/util".
	importPathPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_\-]*([./][a-zA-Z_][a-zA-Z0-9_\-]*)*$`)
	identPattern      = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
)

func checkName(name string, pattern *regexp.Regexp, invalid error) error {
	switch {
	case name == "":
		return invalid
	case len(name) > MaxNameLength:
		return core.ErrNameTooLong
	case !pattern.MatchString(name):
		return invalid
	}
	return nil
}

// ValidateImportPath checks the unit part of a function key.
func ValidateImportPath(name string) error {
	return checkName(name, importPathPattern, core.ErrInvalidUnitName)
}

// ValidateFunctionName checks that name is a single identifier.
func ValidateFunctionName(name string) error {
	return checkName(name, identPattern, core.ErrInvalidFuncName)
}

// SanitizeErrorMessage drops control characters other than tab, CR and LF,
// then truncates to MaxErrorMessageLength runes.
func SanitizeErrorMessage(msg string) string {
	clean := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			return r
		}
		return -1
	}, msg)

	if utf8.RuneCountInString(clean) <= MaxErrorMessageLength {
		return clean
	}
	return string([]rune(clean)[:MaxErrorMessageLength-3]) + "..."
}

// TruncatePayload returns nil for payloads too large to keep in run history.
func TruncatePayload(b []byte) []byte {
	if len(b) > MaxStoredPayloadSize {
		return nil
	}
	return b
}

// ClampRetries bounds an attempt count to [1, MaxRetries].
func ClampRetries(n int) int {
	return min(max(n, 1), MaxRetries)
}
