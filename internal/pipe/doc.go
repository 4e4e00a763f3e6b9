// Package pipe connects stdin/stdout to one IRC connection.
//
// Workers:
// - reader: owns the inbound message stream and stdout
//
// - relay: owns stdin and outbound sends
//
// - Supervisor: owns the lifecycle and the final QUIT
//
// Lifecycle order:
// - joining -> relaying -> shutdown
//
// - relaying starts only after registration completes and every required
// channel is joined or has been rejected by the server.
//
// - every path ends in exactly one Disconnect.
//
// Workers report to the Supervisor over unbuffered channels, so a worker
// never runs ahead of what the Supervisor has observed. The relay closes its
// channel when stdin ends; the Supervisor treats the close as completion.
package pipe
