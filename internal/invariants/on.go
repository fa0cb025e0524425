// Licensed under the MIT License. See LICENSE file in the project root for details.

//go:build invariants || race

package invariants

// Enabled is true if we were built with the "invariants" or "race" build tags.
const Enabled = true
