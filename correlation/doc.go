// Package correlation implements the Correlation Tracker: a table of
// in-flight request contexts keyed by correlation ID, each resolving
// exactly once to COMPLETED, FAILED, TIMED_OUT, or CANCELLED. A
// background sweeper times out stale PENDING contexts; AwaitResult gives
// callers a single future/promise abstraction instead of a polling loop.
package correlation
