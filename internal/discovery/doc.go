// Package discovery finds tally devices on the local network two ways.
//
// Passive: devices broadcast a device_announcement JSON datagram over
// UDP when they boot and periodically afterwards. The listener consumes
// these and hands them to the registry pipeline like a heartbeat.
//
// Active: an on-demand sweep probes every address in a configured CIDR
// for the device API, with bounded concurrency. The registry surface
// triggers this when an operator asks to discover devices.
package discovery
