package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wealth_ledger"

var (
	// Registry 本服务的指标注册表
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP 请求数",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP 请求耗时",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "path"},
	)

	ledgerFlows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "flows_total",
			Help:      "资金流水写入次数",
		},
		[]string{"fund_type", "result"},
	)

	settlements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "settlements_total",
			Help:      "产品结算次数",
		},
		[]string{"result"},
	)

	credits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "credits_total",
			Help:      "结算回款入账次数",
		},
		[]string{"result"},
	)

	accrualRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "accrual",
			Name:      "holdings_total",
			Help:      "收益计提处理的持仓数",
		},
		[]string{"result"},
	)

	accrualDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "accrual",
			Name:      "run_duration_seconds",
			Help:      "收益计提任务耗时",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	scheduledProducts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "scheduled_products",
			Help:      "已挂定时器等待结算的产品数",
		},
	)

	poolTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "tasks_total",
			Help:      "工作池任务数",
		},
		[]string{"result"},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		ledgerFlows,
		settlements,
		credits,
		accrualRuns,
		accrualDuration,
		scheduledProducts,
		poolTasks,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler 暴露已注册的指标
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// GinMiddleware 记录请求数和耗时，path 使用路由模板避免标签爆炸
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func RecordFlow(fundType string, err error) {
	ledgerFlows.WithLabelValues(fundType, result(err)).Inc()
}

func RecordSettlement(err error) {
	settlements.WithLabelValues(result(err)).Inc()
}

func RecordCredit(outcome string) {
	credits.WithLabelValues(outcome).Inc()
}

func RecordAccrual(succeeded, skipped, failed int, duration time.Duration) {
	accrualRuns.WithLabelValues("ok").Add(float64(succeeded))
	accrualRuns.WithLabelValues("skipped").Add(float64(skipped))
	accrualRuns.WithLabelValues("error").Add(float64(failed))
	accrualDuration.Observe(duration.Seconds())
}

func SetScheduledProducts(n int) {
	scheduledProducts.Set(float64(n))
}

func RecordPoolTask(outcome string) {
	poolTasks.WithLabelValues(outcome).Inc()
}
