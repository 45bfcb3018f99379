package socket

import "errors"

// ErrSocketClosed is returned by Read/Write once a socket has closed,
// either through the two-phase close protocol or transport teardown.
var ErrSocketClosed = errors.New("socket: closed")
