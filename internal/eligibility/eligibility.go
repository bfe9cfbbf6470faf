package eligibility

import (
	"fmt"
	"time"

	"github.com/darmiel/kartei/internal/core"
)

const day = 24 * time.Hour

// MaxUnlockDelayDays is the longest supported unlock delay (100 years).
const MaxUnlockDelayDays = 36525

// Result of an eligibility evaluation.
type Result struct {
	Eligible      bool      `json:"eligible"`
	AvailableAt   time.Time `json:"available_at"`
	DaysRemaining int       `json:"days_remaining"`
}

// CheckDelay rejects unlock delays outside [0, MaxUnlockDelayDays].
func CheckDelay(unlockDelayDays int) error {
	switch {
	case unlockDelayDays < 0:
		return &core.ValidationError{
			Field:  "unlock_delay_days",
			Reason: fmt.Sprintf("must not be negative, got %d", unlockDelayDays),
		}
	case unlockDelayDays > MaxUnlockDelayDays:
		return &core.ValidationError{
			Field:  "unlock_delay_days",
			Reason: fmt.Sprintf("must not exceed %d, got %d", MaxUnlockDelayDays, unlockDelayDays),
		}
	}
	return nil
}

// AvailableAt returns enrolledAt shifted by the unlock delay.
// Days are fixed 24h spans so the result does not depend on the time zone.
// Delays are clamped to [0, MaxUnlockDelayDays].
func AvailableAt(enrolledAt time.Time, unlockDelayDays int) time.Time {
	delay := min(max(unlockDelayDays, 0), MaxUnlockDelayDays)
	return enrolledAt.Add(time.Duration(delay) * day)
}

// Evaluate decides whether an artifact may be obtained at now.
// The boundary now == availableAt is eligible.
func Evaluate(enrolledAt time.Time, unlockDelayDays int, now time.Time) (Result, error) {
	if err := CheckDelay(unlockDelayDays); err != nil {
		return Result{}, err
	}

	availableAt := AvailableAt(enrolledAt, unlockDelayDays)
	if !now.Before(availableAt) {
		return Result{
			Eligible:    true,
			AvailableAt: availableAt,
		}, nil
	}

	remaining := availableAt.Sub(now)
	days := int(remaining / day)
	if remaining%day != 0 {
		days++
	}
	return Result{
		Eligible:      false,
		AvailableAt:   availableAt,
		DaysRemaining: days,
	}, nil
}
