// Package protocol owns the simulation mirror wire contract and parsing primitives.
//
// Ownership boundary:
// - request opcodes and reply enumerations
// - sequential reply reader/writer primitives
// - object, visual, pose and contact grammar
//
// Framing of replies into fixed-size packets lives in protocol/frame.
package protocol
