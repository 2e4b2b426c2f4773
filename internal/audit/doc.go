// Package audit records the binding trail: every connect, disconnect and
// transplant that succeeded, every repair made by the reconcile sweep, and
// every partial failure that left a flower/pot pair inconsistent.
//
// Partial failures are the entries an operator must act on; List with
// Action set to ActionPartialFailure finds them.
package audit
