package wire

import "errors"

// 编解码错误
var (
	ErrShortRead       = errors.New("wire: short read")
	ErrBadMagic        = errors.New("wire: bad magic")
	ErrBadChecksum     = errors.New("wire: bad checksum")
	ErrPayloadTooLarge = errors.New("wire: payload too large")
)
