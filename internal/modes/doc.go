// Package modes resolves the execution variants ("modes") of a test.
//
// A descriptor either lists its modes statically or supplies a Generator, a
// plain function that receives a Helper (inherited modes, dimension
// combination, all-primary marking) and returns the list. Both forms are
// validated the same way: names must be non-empty, unique ignoring case and,
// unless disabled, start with an upper-case letter.
//
// A resolved list always has at least one primary mode. When nothing is marked
// primary explicitly, the first mode is. An empty list means the test has a
// single implicit "no mode" variant.
package modes
