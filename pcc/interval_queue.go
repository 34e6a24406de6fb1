// Ported from:
// original_source/src/MonitorIntervalQueue.cpp

package pcc

import (
	"time"

	"github.com/sagernet/sing/common/logger"

	qc "github.com/sagernet/quic-go/congestion"
)

// AckedPacket is one entry of the acked[]/lost[] vectors on_congestion_event
// takes (spec.md section 6 item 3). The same shape is used for both: Bytes
// means "bytes acked" in the acked list and "bytes lost" in the lost list.
// The original CongestionEvent struct also carries a per-packet send time,
// but no operation in sections 4.2/4.3 ever reads it — attribution keys
// solely on event_time — so it is left out here rather than kept as a dead
// field.
type AckedPacket struct {
	PacketNumber qc.PacketNumber
	Bytes        qc.ByteCount
}

// UtilityObserver is notified once every useful interval in the current
// batch has an available utility. This is the "delegate callback as
// coupling" seam design notes section 9 calls for: a capability passed by
// reference at construction, grounded on congestion_bbr1/pacer.go's pattern
// of taking a closure at NewPacer time rather than reaching for package
// state.
type UtilityObserver interface {
	OnUtilityAvailable(batch []UtilityInfo)
}

// IntervalQueue partitions the sending timeline into monitor intervals,
// attributes packet-level feedback to the interval it belongs to, and
// notifies its observer once a full batch of useful intervals resolves.
//
// Not safe for concurrent use — see the package doc comment.
type IntervalQueue struct {
	intervals    []*Interval
	numUseful    int
	numAvailable int
	observer     UtilityObserver
	logger       logger.Logger
}

// NewIntervalQueue creates an empty queue reporting to observer.
func NewIntervalQueue(observer UtilityObserver, log logger.Logger) *IntervalQueue {
	return &IntervalQueue{observer: observer, logger: log}
}

// Enqueue appends a new tail interval.
func (q *IntervalQueue) Enqueue(rate Bandwidth, isUseful bool, toleranceRatio float64, rttOnStart time.Duration, endTime Time) {
	if isUseful {
		q.numUseful++
	}
	q.intervals = append(q.intervals, newInterval(rate, isUseful, toleranceRatio, rttOnStart, endTime))
}

// OnPacketSent attributes a freshly sent packet to the tail interval. A
// no-op if the queue is empty.
func (q *IntervalQueue) OnPacketSent(sentTime Time, packetNumber qc.PacketNumber, bytes qc.ByteCount) {
	if len(q.intervals) == 0 {
		return
	}
	q.intervals[len(q.intervals)-1].recordPacketSent(sentTime, packetNumber, bytes)
}

// Current returns the tail interval. Callers must ensure the queue is
// non-empty.
func (q *IntervalQueue) Current() *Interval { return q.intervals[len(q.intervals)-1] }

// Empty reports whether the queue holds no intervals.
func (q *IntervalQueue) Empty() bool { return len(q.intervals) == 0 }

// Size returns the number of intervals currently queued.
func (q *IntervalQueue) Size() int { return len(q.intervals) }

// NumUsefulIntervals returns the count of queued intervals with IsUseful set.
func (q *IntervalQueue) NumUsefulIntervals() int { return q.numUseful }

// NumAvailableIntervals returns the count of useful intervals in the current
// batch whose utility has already been computed.
func (q *IntervalQueue) NumAvailableIntervals() int { return q.numAvailable }

// OnRttInflationInStarting discards every queued interval and its counters.
// Called when the Controller abandons the current round of experiments
// because RTT inflated past tolerance while still in STARTING mode.
func (q *IntervalQueue) OnRttInflationInStarting() {
	q.intervals = nil
	q.numUseful = 0
	q.numAvailable = 0
}

// OnCongestionEvent attributes every acked/lost packet to the useful
// interval whose send range contains it (non-useful intervals receive no
// attribution), then — once every useful interval in the queue
// has an available utility (or one turned out to be unscoreable) — reports
// the batch to the observer and dequeues it.
func (q *IntervalQueue) OnCongestionEvent(acked, lost []AckedPacket, rtt time.Duration, eventTime Time) {
	q.numAvailable = 0
	if q.numUseful == 0 {
		return
	}

	invalid := false
	for _, iv := range q.intervals {
		if !iv.IsUseful {
			continue
		}
		if iv.isUtilityAvailable(eventTime) {
			q.numAvailable++
			continue
		}

		for _, l := range lost {
			if iv.containsPacket(l.PacketNumber) {
				iv.BytesLost += l.Bytes
			}
		}
		for _, a := range acked {
			if iv.containsPacket(a.PacketNumber) {
				iv.BytesAcked += a.Bytes
				iv.PacketRTTSamples = append(iv.PacketRTTSamples, PacketRttSample{PacketNumber: a.PacketNumber, RTT: rtt})
			}
		}

		if iv.isUtilityAvailable(eventTime) {
			iv.RTTOnMonitorEnd = rtt
			u, ok := utility(iv)
			if !ok {
				invalid = true
				if q.logger != nil {
					q.logger.Warn("dropping monitor interval batch: utility undefined for too-small interval")
				}
				break
			}
			iv.Utility = u
			q.numAvailable++
		}
	}

	if q.numUseful > q.numAvailable && !invalid {
		return
	}

	if !invalid {
		batch := make([]UtilityInfo, 0, q.numUseful)
		for _, iv := range q.intervals {
			if !iv.IsUseful {
				continue
			}
			batch = append(batch, UtilityInfo{SendingRate: iv.TargetSendingRate, Utility: iv.Utility})
		}
		q.observer.OnUtilityAvailable(batch)
	}

	for q.numUseful > 0 {
		if q.intervals[0].IsUseful {
			q.numUseful--
		}
		q.intervals = q.intervals[1:]
	}
	q.numAvailable = 0
}
