package score

import "math/rand"

// LuckyOutcome is one of the five reward tiers drawn on every 7th
// checkin in place of the ordinary random reward.
type LuckyOutcome int

// Lucky reward tiers, in draw order.
const (
	LuckyFullCode LuckyOutcome = iota // activation code, sent privately
	LuckyHalfCode                     // 15 days of media expiry (or converted score)
	LuckyWeekCode                     // 7 days
	LuckyDayCode                      // 1 day
	LuckyDouble                       // doubled ordinary reward, absolute value
)

// Weights of the lucky tiers. They sum to 1.0; tests assert against
// these constants directly.
const (
	WeightFullCode = 0.01
	WeightHalfCode = 0.02
	WeightWeekCode = 0.12
	WeightDayCode  = 0.15
	WeightDouble   = 0.70
)

// luckyTable lists outcomes with their weights in draw order for
// cumulative-probability selection.
var luckyTable = []struct {
	Outcome LuckyOutcome
	Weight  float64
}{
	{LuckyFullCode, WeightFullCode},
	{LuckyHalfCode, WeightHalfCode},
	{LuckyWeekCode, WeightWeekCode},
	{LuckyDayCode, WeightDayCode},
	{LuckyDouble, WeightDouble},
}

// String returns the tier name.
func (o LuckyOutcome) String() string {
	switch o {
	case LuckyFullCode:
		return "fullcode"
	case LuckyHalfCode:
		return "halfcode"
	case LuckyWeekCode:
		return "weekcode"
	case LuckyDayCode:
		return "daycode"
	case LuckyDouble:
		return "double"
	}
	return "unknown"
}

// ExtendDays returns the media-account expiry extension granted by a
// code-conversion tier, or 0 for tiers that do not extend expiry.
func (o LuckyOutcome) ExtendDays() int {
	switch o {
	case LuckyHalfCode:
		return 15
	case LuckyWeekCode:
		return 7
	case LuckyDayCode:
		return 1
	}
	return 0
}

// Rand is the subset of math/rand the draws need. The process-wide
// source satisfies it, and tests can plug a deterministic one.
type Rand interface {
	Intn(n int) int
	Float64() float64
}

// globalRand adapts the top-level math/rand functions, which are safe
// for concurrent use.
type globalRand struct{}

func (globalRand) Intn(n int) int   { return rand.Intn(n) }
func (globalRand) Float64() float64 { return rand.Float64() }

// GlobalRand is the default draw source.
var GlobalRand Rand = globalRand{}

// DrawLucky samples a lucky tier by cumulative probability.
func DrawLucky(r Rand) LuckyOutcome {
	x := r.Float64()
	var cum float64
	for _, entry := range luckyTable {
		cum += entry.Weight
		if x < cum {
			return entry.Outcome
		}
	}
	// Floating point accumulation can leave x just past the total.
	return luckyTable[len(luckyTable)-1].Outcome
}

// DrawBase draws the ordinary-day checkin reward uniformly from
// [min, max] inclusive.
func DrawBase(r Rand, min, max int) int {
	if max < min {
		min, max = max, min
	}
	return r.Intn(max-min+1) + min
}
