// Package internal holds functions that ldtest's own tests need to call from outside the ldtest
// package, so that they appear in stacktraces as non-ldtest frames.
package internal

// RunAction calls action.
func RunAction(action func()) {
	action()
}
