// Package quiz implements the Problem Source: a generator of multi-step
// arithmetic problems.
//
// A Problem is an ordered list of operands folded left-to-right through an
// ordered list of operators. The answer is rounded to two decimal places and
// every problem carries human-readable steps describing the fold.
//
// Generators remember the content hash of the last N problems (default 100)
// and retry generation when a fresh problem collides with that history.
// Problems are immutable once built; callers share them freely.
package quiz
