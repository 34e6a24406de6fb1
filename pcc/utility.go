// Ported from:
// original_source/src/MonitorIntervalQueue.cpp (MonitorIntervalQueue::CalculateUtility)

package pcc

import "math"

const (
	// megabit is the unit the throughput and loss/rtt penalty terms are
	// normalized against (2^20, matching the source's kMegabit).
	megabit = 1024 * 1024

	// utilityAlpha and utilityExponent shape the sub-linear throughput
	// reward: sendingFactor = alpha * (rate/megabit)^exponent.
	utilityAlpha    = 1.0
	utilityExponent = 0.9

	// rttContributionCoefficient scales the quantized rtt penalty into a
	// per-byte deduction.
	rttContributionCoefficient = 11330.0

	// lossToleranceThreshold is the loss rate below which losses are
	// charged at the lenient coefficient instead of the harsh one.
	lossToleranceThreshold = 0.03
	lossCoefficientLenient = 1.0
	lossCoefficientSevere  = 11.35
)

// utility computes the scalar utility of a completed interval, per spec.md
// section 4.1. It returns (0, false) if the interval is too small to score —
// the only recoverable failure this function can produce (section 7).
func utility(iv *Interval) (float64, bool) {
	if iv.LastPacketSentTime <= iv.FirstPacketSentTime {
		return 0, false
	}

	durationUS := float64(iv.LastPacketSentTime - iv.FirstPacketSentTime)
	if durationUS < 1 {
		durationUS = 1
	}
	durationSeconds := durationUS / 1e6

	bytesSent := float64(iv.BytesSent)
	bytesLost := float64(iv.BytesLost)

	sendingRateBPS := bytesSent * 8 / durationSeconds
	sendingFactor := utilityAlpha * math.Pow(sendingRateBPS/megabit, utilityExponent)

	rttPenalty := quantizeRTTPenalty(latencyInflation(iv.PacketRTTSamples))
	rttContribution := rttContributionCoefficient * bytesSent * rttPenalty

	lossRate := bytesLost / bytesSent
	lossCoefficient := lossCoefficientSevere
	if lossRate <= lossToleranceThreshold {
		lossCoefficient = lossCoefficientLenient
	}
	lossContribution := float64(iv.NPackets) * lossRate * lossCoefficient

	u := sendingFactor - (lossContribution+rttContribution)*(sendingRateBPS/megabit)/float64(iv.NPackets)
	return u, true
}

// latencyInflation approximates the time-derivative of RTT across the
// interval by splitting the ack-ordered RTT samples into two halves and
// comparing their sums. 0 if there are too few samples to split, or if both
// halves sum to 0.
func latencyInflation(samples []PacketRttSample) float64 {
	half := len(samples) / 2
	if half == 0 {
		return 0
	}
	var first, second float64
	for i := 0; i < half; i++ {
		first += float64(samples[i].RTT.Microseconds())
		second += float64(samples[i+half].RTT.Microseconds())
	}
	if first+second == 0 {
		return 0
	}
	return 2 * (second - first) / (first + second)
}

// quantizeRTTPenalty implements the step function spec.md section 4.1 and
// section 9's Open Question call out as deliberate: jitter-level RTT swings
// below a 0.02 step must not move the utility at all. Written to match the
// source's nested-truncation expression
// (int(int(x*100)/100.0*100)/2*2/100.0) exactly, including its truncation
// (not rounding) toward zero, and its bias for negative inputs — a small
// negative latencyInflation truncates to 0 just like a small positive one,
// since both Go's and C++'s int() truncate toward zero.
func quantizeRTTPenalty(latencyInflation float64) float64 {
	truncated := math.Trunc(latencyInflation * 100)
	steps := math.Trunc(truncated / 2)
	return steps * 2 / 100
}
