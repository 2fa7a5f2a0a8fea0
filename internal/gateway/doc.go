// Package gateway issues imperative commands to tally devices over their
// local HTTP API: restart, tally push, firmware queries, firmware upload
// and old-slot erase.
//
// Every command resolves to an explicit outcome rather than a bare error.
// A command starts pending, bounded by its timeout, and finalizes as
// Success (the device answered OK), Failure (explicit error or timeout),
// or AssumedSuccess. The last one exists because the on-device OTA stack
// tears the socket down while flashing or rebooting: from this side a
// connection reset after a restart or upload command is indistinguishable
// from a crash, and in practice it almost always means the command worked.
// The gateway probes the device once with a short timeout before
// finalizing, but an unreachable device after a reset is still assumed
// successful - silence during a flash write is expected.
package gateway
