package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，供 Daemon/API 注册与暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		CycleDuration, CycleTotal, CycleSkippedTotal,
		SnapshotWriteTotal, RecoveryTotal, RebirthTotal,
		WatchdogStallTotal, HeartbeatAgeSeconds,
	)
}

// CycleDuration 单个循环执行耗时（秒）
var CycleDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "agentd_cycle_duration_seconds",
		Help:    "循环执行耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
)

// CycleTotal 循环总数（按结果）
var CycleTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "agentd_cycle_total",
		Help: "循环总数（按结果）",
	},
	[]string{"status"}, // completed | error
)

// CycleSkippedTotal 因重入保护被跳过的 tick 总数
var CycleSkippedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "agentd_cycle_skipped_total",
		Help: "因上一循环仍在执行而被跳过的 tick 总数",
	},
)

// SnapshotWriteTotal 快照写入总数（按结果）
var SnapshotWriteTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "agentd_snapshot_write_total",
		Help: "快照写入总数（按结果）",
	},
	[]string{"result"}, // ok | error
)

// RecoveryTotal Daemon 恢复总数（按类型）
var RecoveryTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "agentd_recovery_total",
		Help: "Daemon 恢复总数（按类型）",
	},
	[]string{"type"}, // cold_start | crash_recovery | watchdog_recovery | manual_recovery
)

// RebirthTotal 连续性重生总数（按严重度）
var RebirthTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "agentd_rebirth_total",
		Help: "连续性重生总数（按严重度）",
	},
	[]string{"severity"},
)

// WatchdogStallTotal 看门狗判定的停摆次数
var WatchdogStallTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "agentd_watchdog_stall_total",
		Help: "看门狗判定心跳超时的次数",
	},
)

// HeartbeatAgeSeconds 最近一次心跳距今的秒数（看门狗每次巡检时更新）
var HeartbeatAgeSeconds = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "agentd_heartbeat_age_seconds",
		Help: "最近一次心跳距今的秒数",
	},
)

// WritePrometheus 将 Prometheus 文本格式写入 w（供 Hertz 等复用）
func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
