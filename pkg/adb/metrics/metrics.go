// Package metrics 为dispatcher提供基于prometheus/client_golang的
// 可观测性实现（[METRICS]补充特性），构造方式沿用functional-options模式；
// auth握手不产生任何指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/goadb/hostbridge/pkg/adb/wire"
)

// Option 配置Collector的注册方式
type Option func(*collectorConfig)

type collectorConfig struct {
	registerer  prometheus.Registerer
	constLabels prometheus.Labels
}

// WithRegistry 使用给定的Registerer代替prometheus.DefaultRegisterer
func WithRegistry(r prometheus.Registerer) Option {
	return func(c *collectorConfig) { c.registerer = r }
}

// WithConstLabels 给所有导出的指标附加常量标签（例如设备序列号）
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *collectorConfig) { c.constLabels = labels }
}

// Collector 实现dispatcher.Metrics接口，统计报文路由、socket生命周期与
// 字节吞吐量
type Collector struct {
	packetsRouted  *prometheus.CounterVec
	socketsOpened  prometheus.Counter
	socketsClosed  prometheus.Counter
	activeSockets  prometheus.Gauge
	bytesTransferred prometheus.Counter
}

// New 构造并注册一组Collector指标
func New(opts ...Option) *Collector {
	cfg := collectorConfig{registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &Collector{
		packetsRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "adb_host_bridge",
			Name:        "packets_routed_total",
			Help:        "Number of wire packets routed by the dispatcher, by command.",
			ConstLabels: cfg.constLabels,
		}, []string{"command"}),
		socketsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "adb_host_bridge",
			Name:        "sockets_opened_total",
			Help:        "Number of logical sockets opened (local or remote initiated).",
			ConstLabels: cfg.constLabels,
		}),
		socketsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "adb_host_bridge",
			Name:        "sockets_closed_total",
			Help:        "Number of logical sockets that reached CLOSED.",
			ConstLabels: cfg.constLabels,
		}),
		activeSockets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "adb_host_bridge",
			Name:        "active_sockets",
			Help:        "Number of sockets currently open.",
			ConstLabels: cfg.constLabels,
		}),
		bytesTransferred: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "adb_host_bridge",
			Name:        "bytes_transferred_total",
			Help:        "Total WRTE payload bytes routed in either direction.",
			ConstLabels: cfg.constLabels,
		}),
	}

	if cfg.registerer != nil {
		cfg.registerer.MustRegister(c.packetsRouted, c.socketsOpened, c.socketsClosed, c.activeSockets, c.bytesTransferred)
	}
	return c
}

func (c *Collector) PacketRouted(cmd wire.Command) {
	c.packetsRouted.WithLabelValues(cmd.String()).Inc()
}

func (c *Collector) SocketOpened() {
	c.socketsOpened.Inc()
	c.activeSockets.Inc()
}

func (c *Collector) SocketClosed() {
	c.socketsClosed.Inc()
	c.activeSockets.Dec()
}

func (c *Collector) BytesTransferred(n int) {
	c.bytesTransferred.Add(float64(n))
}
