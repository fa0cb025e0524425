// Licensed under the MIT License. See LICENSE file in the project root for details.

package base

import "github.com/cockroachdb/errors"

// ErrCapacityExhausted is returned when every slot of a fixed-capacity
// allocator is taken. It is a sizing error: the capacity was configured
// smaller than the number of concurrent participants.
var ErrCapacityExhausted = errors.New("lfreclaim: capacity exhausted")

// ErrInvalidOptions marks configuration validation failures.
var ErrInvalidOptions = errors.New("lfreclaim: invalid options")
