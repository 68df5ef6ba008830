// Package handler turns registered Go functions into callables that take and
// return JSON. Signatures are checked once at registration; panics raised
// while a function runs are recovered with their stack.
package handler
