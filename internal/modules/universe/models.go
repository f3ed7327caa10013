package universe

import "time"

// dateLayout is the calendar-day format used for price dates
const dateLayout = "2006-01-02"

// Security is one row of the snapshot universe
type Security struct {
	Symbol    string  `json:"symbol"`
	Name      string  `json:"name"`
	Sector    string  `json:"sector"`
	RiskScore float64 `json:"risk_score"`
	Active    bool    `json:"active"`
}

// DailyPrice represents a daily closing price
type DailyPrice struct {
	Date  string  `json:"date"` // YYYY-MM-DD
	Close float64 `json:"close"`
}

// dayUnix converts a YYYY-MM-DD date to the Unix timestamp of UTC midnight
func dayUnix(date string) (int64, error) {
	t, err := time.Parse(dateLayout, date)
	if err != nil {
		return 0, err
	}
	return t.UTC().Unix(), nil
}

func unixDay(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(dateLayout)
}
