// Package pcc implements a PCC/Vivace-style sender-side rate controller:
// a congestion control scheme that learns a sending rate from online
// experiments rather than reacting to loss signals directly.
//
// The controller slices the sending timeline into monitor intervals, each
// held at a candidate rate (Interval), scores every completed interval with
// a utility function that trades off throughput against loss and RTT
// inflation (utility), and batches scored intervals through an
// IntervalQueue that reports back to the Controller once a full round is
// available. The Controller itself runs a three-mode search: STARTING
// doubles the rate while utility keeps improving, PROBING runs paired
// rate-up/rate-down experiments to find a direction, and DECISION_MADE
// exploits that direction with a damped, gradient-driven rate change until
// it reverses.
//
// Every type in this package is single-threaded and non-reentrant: callers
// serialize calls into OnPacketSent and OnCongestionEvent themselves, the
// same way the teacher's congestion.SendAlgorithm implementations assume a
// single connection goroutine.
package pcc
