package cirrostratus

import (
	"testing"
)

func TestDeviceMetricsSnapshotInitial(t *testing.T) {
	m := NewDeviceMetrics()
	snap := m.Snapshot()
	if snap.ReadCnt != 0 || snap.WriteCnt != 0 || snap.OtherCnt != 0 {
		t.Errorf("expected zero initial counters, got %+v", snap)
	}
}

func TestDeviceMetricsRecordsCounters(t *testing.T) {
	m := NewDeviceMetrics()
	m.RecordRead(1024, 1_000_000)
	m.RecordWrite(2048, 2_000_000)
	m.RecordRead(512, 500_000)
	m.RecordOther(10_000)

	snap := m.Snapshot()
	if snap.ReadCnt != 2 {
		t.Errorf("expected 2 read ops, got %d", snap.ReadCnt)
	}
	if snap.WriteCnt != 1 {
		t.Errorf("expected 1 write op, got %d", snap.WriteCnt)
	}
	if snap.OtherCnt != 1 {
		t.Errorf("expected 1 other op, got %d", snap.OtherCnt)
	}
	if snap.ReadBytes != 1536 {
		t.Errorf("expected 1536 read bytes, got %d", snap.ReadBytes)
	}
	if snap.WriteBytes != 2048 {
		t.Errorf("expected 2048 write bytes, got %d", snap.WriteBytes)
	}
}

func TestDeviceMetricsQueueLengthAverage(t *testing.T) {
	m := NewDeviceMetrics()
	m.RecordQueueLength(2)
	m.RecordQueueLength(4)
	snap := m.Snapshot()
	if snap.AvgQueueLength != 3 {
		t.Errorf("expected avg queue length 3, got %v", snap.AvgQueueLength)
	}
}

func TestDeviceMetricsReset(t *testing.T) {
	m := NewDeviceMetrics()
	m.RecordRead(100, 100)
	m.Reset()
	snap := m.Snapshot()
	if snap.ReadCnt != 0 {
		t.Errorf("expected reset to zero counters, got %d", snap.ReadCnt)
	}
}

func TestDeviceMetricsLatencyPercentiles(t *testing.T) {
	m := NewDeviceMetrics()
	for i := 0; i < 100; i++ {
		m.RecordOther(uint64(i+1) * 1_000_000) // spread 1ms..100ms
	}
	snap := m.Snapshot()
	if snap.LatencyP50Ns == 0 {
		t.Error("expected nonzero p50 latency")
	}
	if snap.LatencyP99Ns < snap.LatencyP50Ns {
		t.Error("expected p99 >= p50")
	}
}

func TestMetricsObserverDelegates(t *testing.T) {
	m := NewDeviceMetrics()
	obs := NewMetricsObserver(m)
	obs.ObserveRead(10, 1)
	obs.ObserveWrite(20, 1)
	obs.ObserveOther(1)
	obs.ObserveQueueLength(5)

	snap := m.Snapshot()
	if snap.ReadCnt != 1 || snap.WriteCnt != 1 || snap.OtherCnt != 1 {
		t.Errorf("expected observer to delegate all calls, got %+v", snap)
	}
}

func TestInterfaceMetricsReset(t *testing.T) {
	var im InterfaceMetrics
	im.RxCnt.Add(5)
	im.Reset()
	if im.RxCnt.Load() != 0 {
		t.Error("expected reset to zero RxCnt")
	}
}
