// Package graph models the partitioned stream program handed to the
// synthesis passes: stages chained into segments, segments joined by weighted
// cross edges, and the steady-state dependencies between segments. The graph
// is mutable so the balancer can insert buffering, and it carries a version
// token so cached rate data can tell when it went stale.
package graph
