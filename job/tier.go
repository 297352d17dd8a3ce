package job

import "fmt"

// Tier is the tenant class of the submitting user. It determines the
// scheduling priority of the job and the user's monthly admission quota.
type Tier string

const (
	Free       Tier = "free"
	Indie      Tier = "indie"
	Pro        Tier = "pro"
	Enterprise Tier = "enterprise"
)

// UnlimitedMonthly marks a tier without a monthly admission quota.
const UnlimitedMonthly = -1

// Limits describes the scheduling and quota parameters of a tier.
//
// Priority orders jobs in the pending index; lower values are claimed
// first. MonthlyLimit caps successful admissions per user per calendar
// month; UnlimitedMonthly disables the cap. ConcurrentCap is the
// per-tier concurrency budget reserved in the configuration surface.
type Limits struct {
	Priority      int   `yaml:"priority"`
	MonthlyLimit  int64 `yaml:"monthly_limit"`
	ConcurrentCap int   `yaml:"concurrent_cap"`
}

// DefaultLimits returns the built-in tier table.
//
// Priority is a pure function of tier: enterprise=0, pro=1, indie=2,
// free=3. Free users get one admission per month, indie ten; paid tiers
// are unlimited.
func DefaultLimits() map[Tier]Limits {
	return map[Tier]Limits{
		Enterprise: {Priority: 0, MonthlyLimit: UnlimitedMonthly, ConcurrentCap: 3},
		Pro:        {Priority: 1, MonthlyLimit: UnlimitedMonthly, ConcurrentCap: 2},
		Indie:      {Priority: 2, MonthlyLimit: 10, ConcurrentCap: 1},
		Free:       {Priority: 3, MonthlyLimit: 1, ConcurrentCap: 1},
	}
}

// ParseTier converts a string into a Tier value.
//
// An error is returned for unrecognized strings.
func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case Free, Indie, Pro, Enterprise:
		return Tier(s), nil
	default:
		return "", fmt.Errorf("unknown tier: %s", s)
	}
}

// String returns the tier name.
func (t Tier) String() string {
	return string(t)
}
