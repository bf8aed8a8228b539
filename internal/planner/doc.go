// Package planner turns loaded descriptors and run-time selection criteria
// into an ordered, immutable RunPlan.
//
// Build runs in a fixed sequence:
//
//  1. reject duplicate test ids;
//  2. resolve every descriptor's modes;
//  3. apply the id, mode, group, regex and type filters;
//  4. compute an execution order hint per (test, mode) pair;
//  5. stable-sort the pairs by (hint, descriptor file path);
//  6. replicate the sorted sequence once per cycle.
//
// The resulting order is the canonical report order. Execution may overlap,
// but results are always presented in plan order.
package planner
