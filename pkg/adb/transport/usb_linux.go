//go:build linux

// Package transport: USB侧skeleton，展示如何在Linux上通过golang.org/x/sys
// 打开一个批量传输端点。真实的USB描述符解析、设备枚举超出核心范围
// （见spec.md §1非目标：传输适配器的具体实现），此文件只固定接口边界。
package transport

import (
	"errors"

	"github.com/goadb/hostbridge/pkg/adb/wire"
	"golang.org/x/sys/unix"
)

// ErrUSBNotImplemented 表示USB传输尚未实现底层bulk读写，只提供了骨架
var ErrUSBNotImplemented = errors.New("transport: usb bulk transport not implemented")

// usbTransport 是Transport在Linux USB bulk端点上的骨架实现
// fd由调用方通过usbfs ioctl打开的设备文件描述符提供
type usbTransport struct {
	fd int
}

// NewUSB 包装一个已经打开的usbfs设备文件描述符
// 目前只验证fd有效，实际bulk收发未实现
func NewUSB(fd int) (Transport, error) {
	if fd < 0 {
		return nil, unix.EBADF
	}
	return &usbTransport{fd: fd}, nil
}

func (u *usbTransport) SetNegotiated(uint32, bool) {}

func (u *usbTransport) Send(*wire.Packet) error {
	return ErrUSBNotImplemented
}

func (u *usbTransport) Recv() (*wire.Packet, error) {
	return nil, ErrUSBNotImplemented
}

func (u *usbTransport) Close() error {
	return unix.Close(u.fd)
}
