package dispatcher

import "errors"

// 致命错误（触发整体拆除，传播给所有未完成的socket操作）
var (
	ErrTransportFailed   = errors.New("dispatcher: transport failed")
	ErrProtocolViolation = errors.New("dispatcher: protocol violation")
)

// 局部错误（只影响单个open()调用）
var (
	ErrServiceUnavailable = errors.New("dispatcher: service unavailable")
	ErrOpenTimeout        = errors.New("dispatcher: open timed out")
)
