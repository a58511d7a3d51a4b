/*
Package session implements the per-session lock registry and the session
document manager built on top of it.

The Registry maps a session ID to a persistent mutex. Entries are created
lazily under a single short-held guard that protects only the map and its
timestamps, never business logic, so unrelated sessions never block each
other. Entries outlive individual calls and are removed only by an explicit
Release or by an idle Sweep, and never while a goroutine holds or waits on
them.

The Manager serializes read-validate-write cycles per session, lazily
creates documents from defaults, migrates older document shapes on load and
resets documents that fail validation.
*/
package session
