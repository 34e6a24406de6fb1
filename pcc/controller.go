// Ported from:
// original_source/src/CongestionController.h, original_source/src/CongestionController.cpp

package pcc

import (
	"fmt"
	"math"
	"time"

	E "github.com/sagernet/sing/common/exceptions"
	"github.com/sagernet/sing/common/logger"

	qc "github.com/sagernet/quic-go/congestion"
)

// Mode is the Controller's current phase of the PCC search.
type Mode int

const (
	// Starting doubles the sending rate every round as long as utility
	// keeps improving.
	Starting Mode = iota
	// Probing runs paired (increase, decrease) experiments around a
	// central rate to decide which direction has higher utility.
	Probing
	// DecisionMade keeps moving the rate in the direction Probing picked,
	// until utility stops improving.
	DecisionMade
)

// Direction is the sign of the last rate movement applied.
type Direction int

const (
	Increase Direction = iota
	Decrease
)

// Controller implements the PCC/Vivace rate controller of spec.md section
// 4.3: a single-threaded, non-reentrant state machine driven entirely by
// its caller's clock and ack/loss observations (section 5 — there is no
// internal timer and no goroutine here). Its only nondeterministic
// operation is the coin flip in maybeSetSendingRate, isolated behind
// RandSource so tests can pin it down.
//
// The Controller owns its IntervalQueue and is, in turn, the queue's sole
// UtilityObserver: OnUtilityAvailable may be invoked synchronously and
// reentrantly from inside OnCongestionEvent, and must not be called from
// anywhere else.
type Controller struct {
	cfg Config
	rnd RandSource
	log logger.Logger

	mode          Mode
	sendingRate   Bandwidth
	latestUtility UtilityInfo
	monitorDur    time.Duration
	direction     Direction
	rounds        int

	initialRTT time.Duration
	avgRTT     time.Duration

	gradient       *windowedMean[float64]
	previousChange Bandwidth
	swingBuffer    int
	amplifier      float64
	allowance      int

	// maxCwndPackets is accepted at construction to match the external
	// interface (section 6), mirroring the original CongestionController's
	// own max_cwnd_bits_ field: neither this port nor the source it is
	// ported from reads it in any of the operations spec.md names.
	maxCwndPackets int

	queue *IntervalQueue
}

// NewController constructs a Controller per spec.md section 6 item 1:
// sending_rate = initial_cwnd * 1400 * 8 * 1e6 / initial_rtt_µs, mode
// STARTING, rounds starting at 1 and every other counter zeroed. rnd and
// log may be nil: a nil RandSource
// falls back to NewDefaultRandSource, and a nil logger silences every debug
// line (ambient observability only — never load-bearing, see spec.md
// section 7).
func NewController(cfg Config, rnd RandSource, log logger.Logger, initialRTT time.Duration, initialCwndPackets, maxCwndPackets int) (*Controller, error) {
	if initialRTT <= 0 {
		return nil, E.New("initial rtt must be positive")
	}
	if initialCwndPackets <= 0 {
		return nil, E.New("initial congestion window must be positive")
	}
	if rnd == nil {
		rnd = NewDefaultRandSource()
	}

	c := &Controller{
		cfg:            cfg,
		rnd:            rnd,
		log:            log,
		sendingRate:    FromBytesAndDuration(qc.ByteCount(initialCwndPackets*cfg.DefaultTCPMSS), initialRTT),
		rounds:         1,
		initialRTT:     initialRTT,
		maxCwndPackets: maxCwndPackets,
		gradient:       newWindowedMean[float64](cfg.GradientWindowSize),
	}
	c.queue = NewIntervalQueue(c, log)
	return c, nil
}

// OnPacketSent is called for every packet transmission. It lazily opens a
// new monitor interval (spec.md section 4.3.1) before attributing bytes to
// the tail interval.
func (c *Controller) OnPacketSent(sentTime Time, bytesInFlight qc.ByteCount, packetNumber qc.PacketNumber, bytes qc.ByteCount, isRetransmittable bool) {
	if c.queue.NumUsefulIntervals() == 0 ||
		(c.avgRTT > 0 && sentTime.Sub(c.queue.Current().FirstPacketSentTime) > c.monitorDur) {
		c.maybeSetSendingRate()

		c.monitorDur = c.computeMonitorDuration()

		tolerance := 0.0
		switch c.mode {
		case Starting:
			tolerance = c.cfg.StartingRTTTolerance
		case DecisionMade:
			tolerance = c.cfg.DecisionMadeRTTTolerance
		}

		isUseful := c.shouldCreateUsefulInterval()
		c.queue.Enqueue(c.sendingRate, isUseful, tolerance, c.avgRTT, sentTime.Add(c.monitorDur))
		c.logTrace("opened monitor interval: mode=%d rate=%.0f useful=%v", c.mode, float64(c.sendingRate), isUseful)
	}
	c.queue.OnPacketSent(sentTime, packetNumber, bytes)
}

// OnCongestionEvent delivers an ack/loss batch and RTT sample, per spec.md
// section 4.3.2.
func (c *Controller) OnCongestionEvent(eventTime Time, rtt time.Duration, acked, lost []AckedPacket) {
	if rtt > 0 {
		if c.avgRTT == 0 {
			c.avgRTT = rtt
		} else {
			c.avgRTT = (3*c.avgRTT + rtt) / 4
		}

		if c.mode == Starting && !c.queue.Empty() && c.queue.Current().RTTOnMonitorStart > 0 &&
			c.avgRTT > time.Duration((1+c.cfg.StartingRTTTolerance)*float64(c.queue.Current().RTTOnMonitorStart)) {
			c.logDebug("rtt inflated past starting tolerance, abandoning round: avg_rtt=%s", c.avgRTT)
			c.queue.OnRttInflationInStarting()
			c.enterProbing()
			return
		}
	}

	c.queue.OnCongestionEvent(acked, lost, rtt, eventTime)
}

// PacingRate returns the rate the caller should pace at: the tail
// interval's target rate if one exists, else the controller's base rate
// (spec.md section 4.3.7).
func (c *Controller) PacingRate() Bandwidth {
	if c.queue.Empty() {
		return c.sendingRate
	}
	return c.queue.Current().TargetSendingRate
}

// CongestionWindow returns sending_rate * rtt / 1e6 bytes, using avg_rtt
// once known and initial_rtt until then (spec.md section 4.3.7). This
// carries forward the original's own unit handling verbatim: the product of
// the rate in bits per second and the RTT in seconds is returned as is, with
// no /8 conversion from bits to bytes.
func (c *Controller) CongestionWindow() qc.ByteCount {
	rtt := c.avgRTT
	if rtt == 0 {
		rtt = c.initialRTT
	}
	return qc.ByteCount(float64(c.sendingRate) * rtt.Seconds())
}

// OnUtilityAvailable implements UtilityObserver: the mode machine of
// spec.md section 4.3.4.
func (c *Controller) OnUtilityAvailable(batch []UtilityInfo) {
	switch c.mode {
	case Starting:
		if batch[0].Utility > c.latestUtility.Utility {
			c.sendingRate *= 2
			c.latestUtility = batch[0]
			c.rounds++
			c.logDebug("starting: utility improved, doubling rate: rate=%.0f", float64(c.sendingRate))
		} else {
			c.enterProbing()
		}

	case Probing:
		if c.canMakeDecision(batch) {
			u0, u1 := batch[0], batch[1]
			var increase bool
			if u0.Utility > u1.Utility {
				increase = u0.SendingRate > u1.SendingRate
			} else {
				increase = u0.SendingRate < u1.SendingRate
			}
			if increase {
				c.direction = Increase
			} else {
				c.direction = Decrease
			}

			k := c.cfg.NumIntervalGroupsInProbing
			last0, last1 := batch[2*k-2], batch[2*k-1]
			if last0.Utility > last1.Utility {
				c.latestUtility = last0
			} else {
				c.latestUtility = last1
			}

			rateChange := c.computeRateChange(batch[0], batch[1])
			if c.sendingRate+rateChange < c.cfg.MinSendingRate {
				rateChange = c.cfg.MinSendingRate - c.sendingRate
			}
			c.previousChange = rateChange
			c.enterDecisionMade(c.sendingRate + rateChange)
		} else {
			c.enterProbing()
		}

	case DecisionMade:
		rateChange := c.computeRateChange(batch[0], c.latestUtility)
		if c.sendingRate+rateChange < c.cfg.MinSendingRate {
			rateChange = c.cfg.MinSendingRate - c.sendingRate
		}
		if positive(rateChange) == positive(c.previousChange) {
			c.previousChange = rateChange
			c.sendingRate += rateChange
			c.latestUtility = batch[0]
			c.logDebug("decision made: rate change continues: rate=%.0f", float64(c.sendingRate))
		} else {
			c.enterProbing()
		}
	}
}

// shouldCreateUsefulInterval decides whether the next interval should
// participate in a utility decision (spec.md section 4.3.1 step 4).
func (c *Controller) shouldCreateUsefulInterval() bool {
	if c.avgRTT == 0 {
		return false
	}
	maxUseful := 1
	if c.mode == Probing {
		maxUseful = 2 * c.cfg.NumIntervalGroupsInProbing
	}
	return c.queue.NumUsefulIntervals() < maxUseful
}

// computeMonitorDuration implements spec.md section 4.3.1 step 2.
func (c *Controller) computeMonitorDuration() time.Duration {
	fromRTT := time.Duration(1.5 * float64(c.avgRTT))
	fromRate := c.cfg.minMonitorDuration(c.sendingRate)
	if fromRTT > fromRate {
		return fromRTT
	}
	return fromRate
}

// maybeSetSendingRate implements spec.md section 4.3.3.
func (c *Controller) maybeSetSendingRate() {
	k := c.cfg.NumIntervalGroupsInProbing
	if c.mode != Probing || (c.queue.NumUsefulIntervals() == 2*k && !c.queue.Current().IsUseful) {
		return
	}

	if c.queue.NumUsefulIntervals() != 0 {
		if c.direction == Increase {
			c.sendingRate = Bandwidth(float64(c.sendingRate) / (1 + c.cfg.ProbingStepSize))
		} else {
			c.sendingRate = Bandwidth(float64(c.sendingRate) / (1 - c.cfg.ProbingStepSize))
		}
		if c.queue.NumUsefulIntervals() == 2*k {
			return
		}
	}

	if c.queue.NumUsefulIntervals()%2 == 0 {
		if coinFlip(c.rnd) {
			c.direction = Increase
		} else {
			c.direction = Decrease
		}
	} else if c.direction == Increase {
		c.direction = Decrease
	} else {
		c.direction = Increase
	}

	if c.direction == Increase {
		c.sendingRate = Bandwidth(float64(c.sendingRate) * (1 + c.cfg.ProbingStepSize))
	} else {
		c.sendingRate = Bandwidth(float64(c.sendingRate) * (1 - c.cfg.ProbingStepSize))
	}
}

// canMakeDecision implements spec.md section 4.3.4's PROBING consensus
// check.
func (c *Controller) canMakeDecision(batch []UtilityInfo) bool {
	k := c.cfg.NumIntervalGroupsInProbing
	if len(batch) < 2*k {
		return false
	}
	var increase bool
	for i := 0; i < k; i++ {
		a, b := batch[2*i], batch[2*i+1]
		var increaseI bool
		if a.Utility > b.Utility {
			increaseI = a.SendingRate > b.SendingRate
		} else {
			increaseI = a.SendingRate < b.SendingRate
		}
		if i == 0 {
			increase = increaseI
		} else if increaseI != increase {
			return false
		}
	}
	return true
}

// computeRateChange implements spec.md section 4.3.5.
func (c *Controller) computeRateChange(u1, u2 UtilityInfo) Bandwidth {
	if u1.SendingRate == u2.SendingRate {
		return c.cfg.MinimumRateChange
	}

	gradient := megabit * (u1.Utility - u2.Utility) / float64(u1.SendingRate-u2.SendingRate)
	avgGradient := c.gradient.Update(gradient)
	change := Bandwidth(avgGradient * c.cfg.UtilityGradientToRateChangeFactor)

	if positive(change) != positive(c.previousChange) {
		c.amplifier = 0
		c.allowance = 0
		if c.swingBuffer < 2 {
			c.swingBuffer++
		}
	}

	change = Bandwidth(float64(change) * c.amplifierFactor())

	if positive(change) == positive(c.previousChange) {
		if c.swingBuffer == 0 {
			if c.amplifier < 3 {
				c.amplifier += 0.5
			} else {
				c.amplifier++
			}
		}
		if c.swingBuffer > 0 {
			c.swingBuffer--
		}
	}

	maxRatio := c.cfg.InitialMaximumProportionalChange + float64(c.allowance)*c.cfg.MaximumProportionalChangeStepSize
	changeRatio := math.Abs(float64(change) / float64(c.sendingRate))
	if changeRatio > maxRatio {
		c.allowance++
		if change < 0 {
			change = Bandwidth(-maxRatio * float64(c.sendingRate))
		} else {
			change = Bandwidth(maxRatio * float64(c.sendingRate))
		}
	} else if c.allowance > 0 {
		c.allowance--
	}

	if positive(change) != positive(c.previousChange) {
		c.amplifier = 0
		c.allowance = 0
	}

	if change < 0 && change > -c.cfg.MinimumRateChange {
		change = -c.cfg.MinimumRateChange
	} else if change > 0 && change < c.cfg.MinimumRateChange {
		change = c.cfg.MinimumRateChange
	}
	return change
}

// amplifierFactor implements spec.md section 4.3.5 step 6's piecewise gain.
func (c *Controller) amplifierFactor() float64 {
	amp := c.amplifier
	switch {
	case amp < 3:
		return amp + 1
	case amp < 6:
		return 2*amp - 2
	case amp < 9:
		return 4*amp - 14
	default:
		return 9*amp - 50
	}
}

// enterProbing implements spec.md section 4.3.6.
func (c *Controller) enterProbing() {
	switch c.mode {
	case Starting:
		c.sendingRate *= 0.5
	case DecisionMade:
		step := math.Min(float64(c.rounds)*c.cfg.DecisionMadeStepSize, c.cfg.MaxDecisionMadeStepSize)
		if c.direction == Increase {
			c.sendingRate = Bandwidth(float64(c.sendingRate) / (1 + step))
		} else {
			c.sendingRate = Bandwidth(float64(c.sendingRate) / (1 - step))
		}
	case Probing:
		if c.queue.Current().IsUseful {
			if c.direction == Increase {
				c.sendingRate = Bandwidth(float64(c.sendingRate) / (1 + c.cfg.ProbingStepSize))
			} else {
				c.sendingRate = Bandwidth(float64(c.sendingRate) / (1 - c.cfg.ProbingStepSize))
			}
		}
	}

	if c.mode == Probing {
		c.rounds++
		return
	}
	c.mode = Probing
	c.rounds = 1
	c.logDebug("entering probing: rate=%.0f", float64(c.sendingRate))
}

// enterDecisionMade implements spec.md section 4.3.6.
func (c *Controller) enterDecisionMade(newRate Bandwidth) {
	c.sendingRate = newRate
	c.mode = DecisionMade
	c.rounds = 1
	c.logDebug("entering decision made: rate=%.0f", float64(c.sendingRate))
}

// positive mirrors the original's `(x > 0)` sign check: zero is treated as
// "not positive", the same bucket as a negative value. computeRateChange's
// sign-flip resets rely on this exact bucketing.
func positive(b Bandwidth) bool { return b > 0 }

func (c *Controller) logDebug(format string, args ...any) {
	if c.log == nil {
		return
	}
	c.log.Debug(fmt.Sprintf(format, args...))
}

func (c *Controller) logTrace(format string, args ...any) {
	if c.log == nil {
		return
	}
	c.log.Trace(fmt.Sprintf(format, args...))
}
