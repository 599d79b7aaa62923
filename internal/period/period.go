// Package period computes settlement period identifiers. A period is the
// rolling 24-hour window between two occurrences of an account's daily
// boundary time, identified by the date the window opened on.
package period

import (
	"time"

	"github.com/api-sage/settlement-ledger/internal/domain"
)

const idLayout = "2006-01-02"

// ID returns the identifier of the period open at now for the given boundary
// time and fixed offset: today's date once today's boundary instant has
// passed, otherwise yesterday's.
func ID(boundary domain.PeriodBoundary, loc *time.Location, now time.Time) string {
	local := now.In(loc)
	cutover := time.Date(local.Year(), local.Month(), local.Day(), boundary.Hour, boundary.Minute, 0, 0, loc)

	day := local
	if local.Before(cutover) {
		day = day.AddDate(0, 0, -1)
	}
	return day.Format(idLayout)
}

// Rollover lazily advances the account's open period. When the open period id
// no longer matches the current one, the expired period's records are dropped
// and the id advances; configuration is untouched. The first touch of a fresh
// account just stamps the id. Reports whether the account changed.
func Rollover(account *domain.Account, now time.Time) bool {
	current := ID(account.PeriodBoundary, account.Location(), now)

	switch account.CurrentPeriodID {
	case current:
		return false
	case "":
		account.CurrentPeriodID = current
		return true
	}

	account.Records.Clear()
	account.RecordSeq = 0
	account.CurrentPeriodID = current
	return true
}
