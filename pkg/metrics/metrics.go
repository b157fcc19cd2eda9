package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var HistogramBuckets = []float64{
	// --- Fast responses (0 - 500ms) ---
	25, 50, 75, 100, 150, 200, 300, 400, 500,

	// --- Medium responses around 700ms (500ms - 2s) ---
	750, 1000, 1250, 1500, 1750, 2000,

	// --- Slow responses (2s - 15s) ---
	2500, 3000, 4000, 5000, 7500, 10000, 15000,

	// --- Extended range: covers 60000ms+ (15s - 75s) ---
	20000,  // 20s
	30000,  // 30s
	45000,  // 45s
	60000,  // 60s
	75000,  // 75s
	90000,  // 90s
	120000, // 120s
}

// Metric is a definition for the name, description, type, ID, and
// prometheus.Collector type (i.e. CounterVec, Summary, etc) of each metric
type Metric struct {
	MetricCollector prometheus.Collector
	ID              string
	Name            string
	Description     string
	Type            string
	Args            []string
}

// NewMetric associates prometheus.Collector based on Metric.Type
func NewMetric(m *Metric, subsystem string) prometheus.Collector {
	var metric prometheus.Collector
	switch m.Type {
	case "counter_vec":
		metric = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
			},
			m.Args,
		)
	case "counter":
		metric = prometheus.NewCounter(
			prometheus.CounterOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
			},
		)
	case "gauge_vec":
		metric = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
			},
			m.Args,
		)
	case "gauge":
		metric = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
			},
		)
	case "histogram_vec":
		metric = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
			},
			m.Args,
		)
	case "histogram":
		metric = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
				Buckets:   HistogramBuckets,
			},
		)
	case "summary_vec":
		metric = prometheus.NewSummaryVec(
			prometheus.SummaryOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
			},
			m.Args,
		)
	case "summary":
		metric = prometheus.NewSummary(
			prometheus.SummaryOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
			},
		)
	}
	return metric
}

var MetricsBusinessProcess = &Metric{
	ID:          "bpDur",
	Name:        "bp_dur",
	Description: "process latency in milliseconds",
	Type:        "histogram_vec",
	Args:        []string{"type", "subtype"},
}

var MetricsPaymentInitiations = &Metric{
	ID:          "payInit",
	Name:        "payment_initiations_total",
	Description: "STK push initiations partitioned by plan and result.",
	Type:        "counter_vec",
	Args:        []string{"plan", "result"},
}

var MetricsMpesaCallbacks = &Metric{
	ID:          "mpesaCb",
	Name:        "mpesa_callbacks_total",
	Description: "M-Pesa result callbacks partitioned by processing result.",
	Type:        "counter_vec",
	Args:        []string{"result"},
}

var MetricsMpesaTokenFetches = &Metric{
	ID:          "mpesaTok",
	Name:        "mpesa_token_fetch_total",
	Description: "Daraja access token lookups partitioned by source (cache, upstream).",
	Type:        "counter_vec",
	Args:        []string{"source"},
}

var (
	bpDur       *prometheus.HistogramVec
	payInit     *prometheus.CounterVec
	mpesaCb     *prometheus.CounterVec
	mpesaTokens *prometheus.CounterVec
)

func init() {
	bpDur = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    MetricsBusinessProcess.Name,
		Help:    MetricsBusinessProcess.Description,
		Buckets: HistogramBuckets,
	}, MetricsBusinessProcess.Args)
	payInit = NewMetric(MetricsPaymentInitiations, "").(*prometheus.CounterVec)
	mpesaCb = NewMetric(MetricsMpesaCallbacks, "").(*prometheus.CounterVec)
	mpesaTokens = NewMetric(MetricsMpesaTokenFetches, "").(*prometheus.CounterVec)
	for _, m := range []*Metric{MetricsBusinessProcess, MetricsPaymentInitiations, MetricsMpesaCallbacks, MetricsMpesaTokenFetches} {
		switch m {
		case MetricsBusinessProcess:
			m.MetricCollector = bpDur
		case MetricsPaymentInitiations:
			m.MetricCollector = payInit
		case MetricsMpesaCallbacks:
			m.MetricCollector = mpesaCb
		case MetricsMpesaTokenFetches:
			m.MetricCollector = mpesaTokens
		}
		prometheus.MustRegister(m.MetricCollector)
	}
}

// ObserveBusinessProcess records the latency of an upstream call started at start.
func ObserveBusinessProcess(typ, subtype string, start time.Time) {
	bpDur.WithLabelValues(typ, subtype).Observe(MillisecondsSince(start))
}

// UnknownLabel stands in for label values that are not from a fixed set.
const UnknownLabel = "unknown"

func IncPaymentInitiation(plan, result string) {
	payInit.WithLabelValues(plan, result).Inc()
}

func IncMpesaCallback(result string) {
	mpesaCb.WithLabelValues(result).Inc()
}

func IncMpesaTokenFetch(source string) {
	mpesaTokens.WithLabelValues(source).Inc()
}

// MillisecondsSince returns the elapsed time since start in milliseconds.
func MillisecondsSince(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}

const (
	RefererKey = "X-Referer"
)
