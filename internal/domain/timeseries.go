package domain

// Metric names one of the per-token time-series kept by the watcher.
type Metric string

const (
	MetricVolume      Metric = "volume"
	MetricPrice       Metric = "price"
	MetricHolderCount Metric = "holders"
	MetricLiquidity   Metric = "liquidity"
)

// MetricPoint is one append-only observation of a token metric.
// Corresponds to the metric_timeseries table in ClickHouse.
// Points are only ever appended; insertion order is chronological order.
type MetricPoint struct {
	Mint        string
	Metric      Metric
	TimestampMs int64
	Value       float64
}

// MetricSnapshot is one periodic refresh of a token's live metrics,
// fanned out into MetricPoints by the lifecycle manager.
type MetricSnapshot struct {
	TimestampMs int64
	Price       float64
	Volume      float64
	HolderCount int
	Liquidity   float64
	Supply      float64
	Holders     []HolderBalance // top holders by balance DESC
}
