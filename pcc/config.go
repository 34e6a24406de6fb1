package pcc

import "time"

// Config holds every tuning constant named in spec section 4.3. The source
// this module is ported from (original_source/src/CongestionController.cpp)
// treats these as anonymous-namespace constants; design notes section 9
// ask for them to be configuration instead, so tests can vary a tuning
// without a second build of the package.
type Config struct {
	// MinSendingRate is the floor applied to every rate change (kMinSendingRate).
	MinSendingRate Bandwidth
	// MinimumRateChange is the smallest magnitude a non-zero rate change may
	// have (kMinimumRateChange).
	MinimumRateChange Bandwidth

	// ProbingStepSize is the +/- fraction applied to the central rate during
	// a PROBING pair (kProbingStepSize).
	ProbingStepSize float64
	// DecisionMadeStepSize is the base step used to undo the last
	// DECISION_MADE movement when re-entering PROBING (kDecisionMadeStepSize).
	DecisionMadeStepSize float64
	// MaxDecisionMadeStepSize caps DecisionMadeStepSize*rounds (kMaxDecisionMadeStepSize).
	MaxDecisionMadeStepSize float64

	// NumIntervalGroupsInProbing is the number of (increase, decrease) pairs
	// PROBING runs before it can reach a decision (kNumIntervalGroupsInProbing).
	NumIntervalGroupsInProbing int
	// MinimumPacketsPerInterval lower-bounds a monitor interval's planned
	// duration (kMinimumPacketsPerInterval).
	MinimumPacketsPerInterval int
	// DefaultTCPMSS is the assumed packet size used only for sizing a
	// monitor interval's planned duration (kDefaultTCPMSS).
	DefaultTCPMSS int

	// StartingRTTTolerance is the fractional RTT inflation tolerated while
	// in STARTING mode by the bail-out check in OnCongestionEvent. It is also
	// recorded on each interval opened in STARTING mode
	// (Interval.RTTToleranceRatio), which the utility function does not read
	// (FLAGS_max_rtt_fluctuation_tolerance_ratio_in_starting).
	StartingRTTTolerance float64
	// DecisionMadeRTTTolerance is the analogous tolerance while in
	// DECISION_MADE mode (FLAGS_max_rtt_fluctuation_tolerance_ratio_in_decision_made).
	DecisionMadeRTTTolerance float64

	// GradientWindowSize bounds the sliding window used to average
	// consecutive utility gradients in computeRateChange
	// (kAvgGradientSampleSize). Default 1, per spec section 9's Open
	// Question: the source's averaging code supports >1 but never uses it.
	GradientWindowSize int
	// UtilityGradientToRateChangeFactor converts an averaged utility
	// gradient into a candidate rate change, scaled by the same binary
	// megabit (1024*1024) the utility function itself uses
	// (kUtilityGradientToRateChangeFactor).
	UtilityGradientToRateChangeFactor float64

	// InitialMaximumProportionalChange is the proportional-change cap before
	// any allowance has accrued (kInitialMaximumProportionalChange).
	InitialMaximumProportionalChange float64
	// MaximumProportionalChangeStepSize is added to the cap per unit of
	// allowance (kMaximumProportionalChangeStepSize).
	MaximumProportionalChangeStepSize float64
}

// DefaultConfig returns the tuning the source ships with.
func DefaultConfig() Config {
	return Config{
		MinSendingRate:                    Bandwidth(2 * megabit),
		MinimumRateChange:                 Bandwidth(0.5 * megabit),
		ProbingStepSize:                   0.05,
		DecisionMadeStepSize:              0.02,
		MaxDecisionMadeStepSize:           0.10,
		NumIntervalGroupsInProbing:        2,
		MinimumPacketsPerInterval:         10,
		DefaultTCPMSS:                     1400,
		StartingRTTTolerance:              0.30,
		DecisionMadeRTTTolerance:          0.05,
		GradientWindowSize:                1,
		UtilityGradientToRateChangeFactor: megabit,
		InitialMaximumProportionalChange:  0.05,
		MaximumProportionalChangeStepSize: 0.06,
	}
}

// minMonitorDuration returns the smallest interval length allowed for the
// configured packet count and MSS at the given rate (the second argument of
// the max() in section 4.3.1 step 2).
func (c Config) minMonitorDuration(sendingRate Bandwidth) time.Duration {
	bits := float64(c.MinimumPacketsPerInterval * 8 * c.DefaultTCPMSS)
	seconds := bits / sendingRate.ToBitsPerSecond()
	return time.Duration(seconds * float64(time.Second))
}
