package score

import "time"

// CheckedInToday reports whether lastCheckin falls on the same
// calendar date as now. Eligibility is by calendar date, not elapsed
// duration: a checkin at 23:59 allows another at 00:00. A nil
// lastCheckin means the user has never checked in.
func CheckedInToday(lastCheckin *time.Time, now time.Time) bool {
	if lastCheckin == nil {
		return false
	}
	y1, m1, d1 := lastCheckin.In(now.Location()).Date()
	y2, m2, d2 := now.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// IsLuckyCheckin reports whether the next checkin for a user with the
// given completed checkin count is a 7th-checkin lucky draw.
func IsLuckyCheckin(checkinCount int) bool {
	return (checkinCount+1)%7 == 0
}

// ConvertScore converts a media-expiry extension into score for users
// with no linked media account: days thirtieths of the current renew
// score, floored. Multiplication happens before division so the
// result matches floor(renewScore/30*days).
func ConvertScore(renewScore int64, days int) int64 {
	return renewScore * int64(days) / 30
}
