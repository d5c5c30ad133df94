// Package stream contains the worker that drives the analysis engine.
//
// The Worker consumes ReadoutEvent values from a channel, typically filled
// by the feed component, and steps each one through an engine.System:
// BeginEvent, ProcessModuleData for every module block, EndEvent. A run
// starts when the worker starts and ends when it stops, bracketed by
// BeginRun/EndRun and identified by a UUID.
//
// The loop follows a desired-state protocol. Pause, Resume and SingleStep
// record the state the loop should move to; the loop applies transitions
// between events, so an event is always stepped completely. Timeticks are
// delivered at a fixed interval while the loop runs, including while
// paused.
//
// Snapshot(fn) hands a function to the processing goroutine and blocks
// until it has run. This is the only sanctioned way for other goroutines,
// such as the monitor service, to read histograms or rate monitors while
// a run is active.
package stream
