// Package primepump computes the ramp-up that lets every core run its
// segments asynchronously in steady state. A resolver tracks per-segment fire
// counts and dependency readiness; the scheduler advances it round by round
// until every segment may fire.
package primepump
