// Package contracts defines the wire-level data structures exchanged between
// routers: the message envelope, destination descriptors, and the delivery
// context handed to consumer handlers. The payload carried by an envelope is
// treated as an opaque byte slice; courier never inspects it.
package contracts
