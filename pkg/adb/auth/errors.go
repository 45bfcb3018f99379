package auth

import "errors"

// 认证阶段错误：均在connect()阶段失败，此时dispatcher尚未创建
var (
	ErrAuthRejected      = errors.New("auth: rejected by peer")
	ErrNoKeys            = errors.New("auth: no private keys available and peer requires auth")
	ErrProtocolViolation = errors.New("auth: unexpected command during handshake")
)
