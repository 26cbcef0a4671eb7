package device

// Stats is a point-in-time view of the device-engine counters named in §3
// that the root metrics package does not itself observe (queue discipline
// and protocol/ATA error counts); read/write/other byte and timing counters
// flow separately through the configured Observer.
type Stats struct {
	ProtoErr       uint64
	AtaErr         uint64
	QueueOver      uint64
	QueueStall     uint64
	IOSlots        uint32
	IORuns         uint64
	AvgQueueLength float64
	QueueDepth     int
	InFlight       int
}

// Stats snapshots the device engine's own counters.
func (d *Device) Stats() Stats {
	s := Stats{
		ProtoErr:   d.protoErr.Load(),
		AtaErr:     d.ataErr.Load(),
		QueueOver:  d.queueOver.Load(),
		QueueStall: d.queueStall.Load(),
		IOSlots:    d.ioSlots.Load(),
		IORuns:     d.ioRuns.Load(),
		QueueDepth: len(d.queue),
		InFlight:   len(d.inFlight),
	}
	if c := d.queueLenCount.Load(); c > 0 {
		s.AvgQueueLength = float64(d.queueLenTotal.Load()) / float64(c)
	}
	return s
}

// ResetStats zeroes every counter Stats reports, backing the control
// plane's clear-stats command. It never touches queue/in-flight state.
func (d *Device) ResetStats() {
	d.protoErr.Store(0)
	d.ataErr.Store(0)
	d.queueOver.Store(0)
	d.queueStall.Store(0)
	d.ioSlots.Store(0)
	d.ioRuns.Store(0)
	d.queueLenTotal.Store(0)
	d.queueLenCount.Store(0)
}
