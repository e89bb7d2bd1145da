// Package network implements the UDP side of A2S_INFO: a client that sends
// queries, negotiates challenges and reassembles split responses, and a
// responder that answers queries on behalf of a local server.
package network

import "errors"

var (
	ErrTimeout           = errors.New("query timed out")
	ErrShortResponse     = errors.New("response too short")
	ErrUnknownHeader     = errors.New("unknown packet header")
	ErrTooManyChallenges = errors.New("too many challenge responses")
	ErrCompressedSplit   = errors.New("compressed split responses are not supported")
	ErrInvalidSplit      = errors.New("invalid split response")
)
