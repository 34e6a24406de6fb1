// Ported from:
// original_source/src/MonitorIntervalQueue.h (MonitorInterval, PacketRttSample, UtilityInfo)

package pcc

import (
	"time"

	qc "github.com/sagernet/quic-go/congestion"
)

// PacketRttSample pairs an acknowledged packet with the RTT observed when
// its ack arrived. Samples are appended in ack-arrival order, not
// packet-number order — the utility function's first-half/second-half split
// depends on that ordering to approximate the RTT's time derivative.
type PacketRttSample struct {
	PacketNumber qc.PacketNumber
	RTT          time.Duration
}

// UtilityInfo is a <sending_rate, utility> pair, the unit the Interval Queue
// hands back to the Controller once a batch of useful intervals completes.
type UtilityInfo struct {
	SendingRate Bandwidth
	Utility     float64
}

// Interval is one monitor interval: a contiguous slice of the sending
// timeline held at a single candidate rate, plus the accumulators needed to
// attribute acks/losses to it and the utility derived once it closes.
//
// Fields fall into the three groups spec.md section 3 describes:
// configuration (set at creation, never mutated again), accumulators
// (mutated by the Interval Queue while this interval is live), and derived
// values (populated once on completion).
type Interval struct {
	// Configuration.
	TargetSendingRate  Bandwidth
	IsUseful           bool
	RTTToleranceRatio  float64
	RTTOnMonitorStart  time.Duration
	EndTime            Time

	// Accumulators.
	FirstPacketSentTime Time
	LastPacketSentTime  Time
	FirstPacketNumber   qc.PacketNumber
	LastPacketNumber    qc.PacketNumber
	BytesSent           qc.ByteCount
	BytesAcked          qc.ByteCount
	BytesLost           qc.ByteCount
	NPackets            int
	PacketRTTSamples    []PacketRttSample

	// Derived, populated on completion.
	RTTOnMonitorEnd time.Duration
	Utility         float64
}

// newInterval constructs an Interval exactly as
// original_source's MonitorInterval constructor does: the end-of-monitor RTT
// starts out equal to the start-of-monitor RTT, since no packet has closed
// the loop yet.
func newInterval(rate Bandwidth, isUseful bool, toleranceRatio float64, rttOnStart time.Duration, endTime Time) *Interval {
	return &Interval{
		TargetSendingRate: rate,
		IsUseful:          isUseful,
		RTTToleranceRatio: toleranceRatio,
		RTTOnMonitorStart: rttOnStart,
		EndTime:           endTime,
		RTTOnMonitorEnd:   rttOnStart,
	}
}

// containsPacket reports whether packetNumber falls within this interval's
// attributed send range.
func (iv *Interval) containsPacket(packetNumber qc.PacketNumber) bool {
	return packetNumber >= iv.FirstPacketNumber && packetNumber <= iv.LastPacketNumber
}

// isUtilityAvailable reports whether, as of now, every packet sent in this
// interval has been resolved (acked or lost) and the interval's planned
// duration has elapsed.
func (iv *Interval) isUtilityAvailable(now Time) bool {
	return now >= iv.EndTime && iv.BytesAcked+iv.BytesLost == iv.BytesSent
}

// recordPacketSent attributes a freshly sent packet to this interval. Only
// the tail interval of a queue should ever receive this call.
func (iv *Interval) recordPacketSent(sentTime Time, packetNumber qc.PacketNumber, bytes qc.ByteCount) {
	if iv.BytesSent == 0 {
		iv.FirstPacketSentTime = sentTime
		iv.FirstPacketNumber = packetNumber
	}
	iv.LastPacketSentTime = sentTime
	iv.LastPacketNumber = packetNumber
	iv.BytesSent += bytes
	iv.NPackets++
}
