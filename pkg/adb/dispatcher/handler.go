package dispatcher

import "github.com/goadb/hostbridge/pkg/adb/socket"

// IncomingHandler 是[INCOMING]组件的钩子：设备主动发起的OPEN（反向服务）
// 到达时被调用一次，决定接受或拒绝；接受后通过OnOpened收到建立好的socket
type IncomingHandler interface {
	// HandleIncoming 决定是否接受serviceString，remotePeerID是对端为该
	// 请求分配的local-id（即我们视角下的remote-id）
	HandleIncoming(serviceString string, remotePeerID uint32) bool
	// OnOpened 在accept后、OKAY已发出时被调用，sock已是ESTABLISHED
	OnOpened(sock *socket.Socket)
}
