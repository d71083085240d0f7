// Package build schedules incremental site rebuilds.
//
// Scheduler turns a burst of change notifications into the fewest compiles
// that still reflect the latest content. Compiles never overlap; a request
// that is superseded while waiting for the running compile is dropped, and
// every successful compile is loaded under a fresh identity so a reload
// never returns a stale cached bundle.
package build
