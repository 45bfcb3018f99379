// Command adb-host-cli 是核心库的一个最小演示：拨号到一个adb端点，
// 完成握手，打开一个服务socket，并在stdin/stdout和socket之间转发字节
//
// 这不是一个服务封装层：它不解析shell/sync/reverse负载，只是把原始
// service字符串和原始字节流转交给核心，对应SPEC_FULL.md §4[CLI]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/goadb/hostbridge/pkg/adb/auth"
	"github.com/goadb/hostbridge/pkg/adb/dispatcher"
	"github.com/goadb/hostbridge/pkg/adb/metrics"
	"github.com/goadb/hostbridge/pkg/adb/transport"
	"github.com/goadb/hostbridge/pkg/adb/wire"
	"github.com/goadb/hostbridge/pkg/utils/config"
	log "github.com/goadb/hostbridge/pkg/utils/logger"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:5555", "adb endpoint to dial, host:port")
	service := flag.String("service", "shell:", "service string to open once connected")
	keyDir := flag.String("keydir", "", "directory holding host RSA keys (default: adb-host-bridge.yml config, or ./keys)")
	withMetrics := flag.Bool("metrics", false, "register prometheus metrics for this session")
	flag.Parse()

	cfg := config.Parse()
	if *keyDir == "" {
		*keyDir = cfg.KeyDir
	}
	if *keyDir == "" {
		*keyDir = "./keys"
	}

	if err := run(*addr, *service, *keyDir, *withMetrics); err != nil {
		log.Errorf("adb-host-cli: %v", err)
		os.Exit(1)
	}
}

func run(addr, service, keyDir string, withMetrics bool) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dialer := &transport.TCPDialer{}
	t, err := dialer.Dial(ctx, addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	keys, err := auth.NewKeyStore(keyDir).LoadOrCreate()
	if err != nil {
		return fmt.Errorf("load host keys: %w", err)
	}

	res, err := auth.Connect(t, auth.Options{
		Version:        wire.VersionSkipChecksum,
		MaxPayload:     wire.DefaultPayload,
		Features:       []string{"shell_v2", "cmd", "stat_v2"},
		Keys:           keys,
		PublicKeyLabel: "adb-host-bridge@cli",
	})
	if err != nil {
		t.Close()
		return fmt.Errorf("handshake: %w", err)
	}
	log.Infof("connected: version=0x%08x maxPayload=%d peerBanner=%q", res.Version, res.MaxPayload, res.PeerBanner)

	var opts []dispatcher.Option
	if withMetrics {
		opts = append(opts, dispatcher.WithMetrics(metrics.New()))
	}
	d := dispatcher.New(t, res.MaxPayload, res.ChecksumRequired, opts...)

	sock, err := d.Open(ctx, service)
	if err != nil {
		return fmt.Errorf("open %q: %w", service, err)
	}
	log.Infof("opened service %q", service)

	if term.IsTerminal(int(os.Stdin.Fd())) {
		oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
		if err == nil {
			defer term.Restore(int(os.Stdin.Fd()), oldState)
		}
	}

	errc := make(chan error, 2)
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				if werr := sock.Write(ctx, buf[:n]); werr != nil {
					errc <- werr
					return
				}
			}
			if err != nil {
				errc <- err
				return
			}
		}
	}()
	go func() {
		for {
			chunk, err := sock.Read(ctx)
			if err != nil {
				errc <- err
				return
			}
			if _, werr := os.Stdout.Write(chunk); werr != nil {
				errc <- werr
				return
			}
		}
	}()

	select {
	case err := <-errc:
		if err != nil && err != io.EOF {
			return fmt.Errorf("session ended: %w", err)
		}
	case <-ctx.Done():
		sock.Close()
	case <-d.Done():
		return fmt.Errorf("dispatcher tore down: %w", d.Err())
	}
	return nil
}
