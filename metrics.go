package cirrostratus

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the latency histogram buckets in nanoseconds,
// logarithmically spaced from 1us to 10s.
var LatencyBuckets = []uint64{
	1_000,
	10_000,
	100_000,
	1_000_000,
	10_000_000,
	100_000_000,
	1_000_000_000,
	10_000_000_000,
}

const numLatencyBuckets = 8

// DeviceMetrics tracks the per-device counters named in §3: read/write/other
// operation counts, byte counts, and cumulative time, plus queue-discipline
// and protocol-error counters.
type DeviceMetrics struct {
	ReadCnt  atomic.Uint64
	ReadBytes atomic.Uint64
	ReadTimeNs atomic.Uint64

	WriteCnt   atomic.Uint64
	WriteBytes atomic.Uint64
	WriteTimeNs atomic.Uint64

	OtherCnt   atomic.Uint64
	OtherTimeNs atomic.Uint64

	IOSlots atomic.Uint32 // in-flight submitted I/Os
	IORuns  atomic.Uint64 // completion batches processed

	QueueLengthTotal atomic.Uint64 // cumulative queue-length samples
	QueueLengthCount atomic.Uint64

	QueueStall atomic.Uint64 // admitted after waiting for a free slot
	QueueOver  atomic.Uint64 // rejected with DEVICE_UNAVAIL
	AtaErr     atomic.Uint64 // ATA command errors
	ProtoErr   atomic.Uint64 // malformed frame / ACL / reservation denial

	latency [numLatencyBuckets]atomic.Uint64
	opCount atomic.Uint64
	totalLatencyNs atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewDeviceMetrics creates a metrics instance with StartTime set to now.
func NewDeviceMetrics() *DeviceMetrics {
	m := &DeviceMetrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordRead records a completed read operation.
func (m *DeviceMetrics) RecordRead(bytes uint64, latencyNs uint64) {
	m.ReadCnt.Add(1)
	m.ReadBytes.Add(bytes)
	m.ReadTimeNs.Add(latencyNs)
	m.recordLatency(latencyNs)
}

// RecordWrite records a completed write operation.
func (m *DeviceMetrics) RecordWrite(bytes uint64, latencyNs uint64) {
	m.WriteCnt.Add(1)
	m.WriteBytes.Add(bytes)
	m.WriteTimeNs.Add(latencyNs)
	m.recordLatency(latencyNs)
}

// RecordOther records a non-read/write command (identify, config, mac-mask,
// reserve).
func (m *DeviceMetrics) RecordOther(latencyNs uint64) {
	m.OtherCnt.Add(1)
	m.OtherTimeNs.Add(latencyNs)
	m.recordLatency(latencyNs)
}

// RecordQueueLength samples the current outstanding-request count.
func (m *DeviceMetrics) RecordQueueLength(n uint32) {
	m.QueueLengthTotal.Add(uint64(n))
	m.QueueLengthCount.Add(1)
}

func (m *DeviceMetrics) recordLatency(latencyNs uint64) {
	m.totalLatencyNs.Add(latencyNs)
	m.opCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.latency[i].Add(1)
		}
	}
}

// Stop marks the device as stopped.
func (m *DeviceMetrics) Stop() { m.StopTime.Store(time.Now().UnixNano()) }

// DeviceMetricsSnapshot is a point-in-time, derived-statistics view of
// DeviceMetrics.
type DeviceMetricsSnapshot struct {
	ReadCnt, WriteCnt, OtherCnt       uint64
	ReadBytes, WriteBytes             uint64
	ReadTimeNs, WriteTimeNs, OtherTimeNs uint64

	AvgQueueLength float64
	QueueStall     uint64
	QueueOver      uint64
	AtaErr         uint64
	ProtoErr       uint64
	IORuns         uint64

	AvgLatencyNs  uint64
	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64
	LatencyHistogram [numLatencyBuckets]uint64

	UptimeNs uint64
}

// Snapshot computes a DeviceMetricsSnapshot.
func (m *DeviceMetrics) Snapshot() DeviceMetricsSnapshot {
	s := DeviceMetricsSnapshot{
		ReadCnt: m.ReadCnt.Load(), WriteCnt: m.WriteCnt.Load(), OtherCnt: m.OtherCnt.Load(),
		ReadBytes: m.ReadBytes.Load(), WriteBytes: m.WriteBytes.Load(),
		ReadTimeNs: m.ReadTimeNs.Load(), WriteTimeNs: m.WriteTimeNs.Load(), OtherTimeNs: m.OtherTimeNs.Load(),
		QueueStall: m.QueueStall.Load(), QueueOver: m.QueueOver.Load(),
		AtaErr: m.AtaErr.Load(), ProtoErr: m.ProtoErr.Load(), IORuns: m.IORuns.Load(),
	}

	if c := m.QueueLengthCount.Load(); c > 0 {
		s.AvgQueueLength = float64(m.QueueLengthTotal.Load()) / float64(c)
	}

	opCount := m.opCount.Load()
	if opCount > 0 {
		s.AvgLatencyNs = m.totalLatencyNs.Load() / opCount
		s.LatencyP50Ns = m.percentile(0.50)
		s.LatencyP99Ns = m.percentile(0.99)
		s.LatencyP999Ns = m.percentile(0.999)
	}
	for i := 0; i < numLatencyBuckets; i++ {
		s.LatencyHistogram[i] = m.latency[i].Load()
	}

	start := m.StartTime.Load()
	if stop := m.StopTime.Load(); stop > 0 {
		s.UptimeNs = uint64(stop - start)
	} else {
		s.UptimeNs = uint64(time.Now().UnixNano() - start)
	}
	return s
}

// percentile estimates the latency at the given percentile (0.0-1.0) by
// linear interpolation across the histogram buckets.
func (m *DeviceMetrics) percentile(p float64) uint64 {
	total := m.opCount.Load()
	if total == 0 {
		return 0
	}
	target := uint64(float64(total) * p)
	var prevBucket, prevCount uint64
	for i, bucket := range LatencyBuckets {
		count := m.latency[i].Load()
		if count >= target {
			if count == prevCount {
				return bucket
			}
			frac := float64(target-prevCount) / float64(count-prevCount)
			return prevBucket + uint64(frac*float64(bucket-prevBucket))
		}
		prevBucket, prevCount = bucket, count
	}
	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset zeroes all counters and restarts the uptime clock; used by tests and
// by CLEAR_STATS.
func (m *DeviceMetrics) Reset() {
	*m = DeviceMetrics{}
	m.StartTime.Store(time.Now().UnixNano())
}

// InterfaceMetrics tracks the per-interface counters named in §3.
type InterfaceMetrics struct {
	RxCnt         atomic.Uint64
	RxBytes       atomic.Uint64
	RxRuns        atomic.Uint64
	RxBuffersFull atomic.Uint64

	TxCnt         atomic.Uint64
	TxBytes       atomic.Uint64
	TxRuns        atomic.Uint64
	TxBuffersFull atomic.Uint64

	Dropped   atomic.Uint64
	Ignored   atomic.Uint64
	Broadcast atomic.Uint64
}

// Reset zeroes all interface counters.
func (m *InterfaceMetrics) Reset() { *m = InterfaceMetrics{} }

// Observer allows pluggable collection of per-request device metrics,
// decoupling the device engine from any particular Metrics implementation.
type Observer interface {
	ObserveRead(bytes uint64, latencyNs uint64)
	ObserveWrite(bytes uint64, latencyNs uint64)
	ObserveOther(latencyNs uint64)
	ObserveQueueLength(n uint32)
}

// NoOpObserver discards every observation.
type NoOpObserver struct{}

func (NoOpObserver) ObserveRead(uint64, uint64)   {}
func (NoOpObserver) ObserveWrite(uint64, uint64)  {}
func (NoOpObserver) ObserveOther(uint64)          {}
func (NoOpObserver) ObserveQueueLength(uint32)    {}

// MetricsObserver implements Observer by recording into a DeviceMetrics.
type MetricsObserver struct {
	metrics *DeviceMetrics
}

// NewMetricsObserver creates an observer recording into m.
func NewMetricsObserver(m *DeviceMetrics) *MetricsObserver { return &MetricsObserver{metrics: m} }

func (o *MetricsObserver) ObserveRead(bytes, latencyNs uint64)  { o.metrics.RecordRead(bytes, latencyNs) }
func (o *MetricsObserver) ObserveWrite(bytes, latencyNs uint64) { o.metrics.RecordWrite(bytes, latencyNs) }
func (o *MetricsObserver) ObserveOther(latencyNs uint64)        { o.metrics.RecordOther(latencyNs) }
func (o *MetricsObserver) ObserveQueueLength(n uint32)          { o.metrics.RecordQueueLength(n) }

var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
