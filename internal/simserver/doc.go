// Package simserver is the server side of the simulation mirror protocol.
//
// Ownership boundary:
// - a mutable scripted Scene (objects, visuals, poses, contacts, versions)
// - the server status (rendering, hibernating, terminating)
// - one reply per 4-byte request, packetized with frame.WriteReply
// - the accept loop and connection tracking
//
// It backs cmd/simmock and the end-to-end tests of internal/client.
package simserver
