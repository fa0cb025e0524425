// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package invariants exposes build-tag controlled debug assertions.
//
// Misuse of the reclamation API (ending a window that was never started,
// destroying a descriptor that is still participating, saving twice into the
// single-slot side channel) is only checked when the binary is built with the
// "invariants" or "race" build tags. Release builds tolerate the misuse and
// carry on, so hot paths pay nothing for the checks.
package invariants

import "github.com/cockroachdb/errors"

// Assertf panics with an assertion failure when invariants are enabled.
// It is a no-op otherwise.
func Assertf(cond bool, format string, args ...interface{}) {
	if Enabled && !cond {
		panic(errors.AssertionFailedf(format, args...))
	}
}
