// Ported from:
// github.com/SagerNet/sing-quic congestion_bbr1/bandwidth.go (unit type and
// conversions), generalized for PCC's need to survive many small
// multiplicative rate changes without losing precision.

package pcc

import (
	"time"

	qc "github.com/sagernet/quic-go/congestion"
)

// Bandwidth is a scalar rate expressed in bits per second. Unlike the
// teacher's integral Bandwidth, this is a float: the rate controller applies
// hundreds of small multiplicative updates (probing's 1±0.05, decision-made's
// gradual gradient-driven steps) to the same value, and integer bps would
// quantize those away within a handful of rounds.
type Bandwidth float64

// Unit conversion constants, mirroring congestion_bbr1/bandwidth.go.
const (
	BitsPerSecond  Bandwidth = 1
	KBitsPerSecond           = 1000 * BitsPerSecond
	MBitsPerSecond           = 1000 * KBitsPerSecond
)

// FromBytesAndDuration computes the average rate needed to carry bytes over
// delta. Returns 0 if bytes is 0, and a very large rate if delta is
// non-positive (mirrors congestion_bbr1.BandwidthFromBytesAndTimeDelta's
// treatment of a degenerate, zero-length interval).
func FromBytesAndDuration(bytes qc.ByteCount, delta time.Duration) Bandwidth {
	if bytes <= 0 {
		return 0
	}
	if delta <= 0 {
		return Bandwidth(1e18)
	}
	return Bandwidth(float64(bytes) * 8 * float64(time.Second) / float64(delta))
}

// ToBitsPerSecond returns the rate as a plain float64 in bits per second.
func (b Bandwidth) ToBitsPerSecond() float64 { return float64(b) }

// ToBytesPerSecond returns the rate in bytes per second.
func (b Bandwidth) ToBytesPerSecond() float64 { return float64(b) / 8 }

// ToMegabitsPerSecond returns the rate in decimal megabits per second
// (1e6 bits). The utility function and the controller's rate constants use
// the binary megabit (2^20 bits) instead, not this unit.
func (b Bandwidth) ToMegabitsPerSecond() float64 { return float64(b) / float64(MBitsPerSecond) }

// BytesPerInterval returns the number of bytes this rate carries over d.
func (b Bandwidth) BytesPerInterval(d time.Duration) qc.ByteCount {
	return qc.ByteCount(float64(b) * float64(d) / 8 / float64(time.Second))
}
