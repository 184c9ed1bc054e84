// Package period превращает символический период дашборда в конкретный интервал времени.
package period

import "time"

// Period обозначает отчётный период.
type Period string

const (
	Today Period = "today"
	Week  Period = "week"
	Month Period = "month"
	Year  Period = "year"
)

// Parse возвращает период по строке; нераспознанное значение трактуется как неделя.
func Parse(s string) Period {
	switch p := Period(s); p {
	case Today, Week, Month, Year:
		return p
	}
	return Week
}

// Range задаёт полуинтервал [Start, End) и начало предыдущего интервала той же длины.
type Range struct {
	Start         time.Time
	End           time.Time
	PreviousStart time.Time
}

// Resolve вычисляет интервал периода относительно now. End всегда равен now,
// предыдущий интервал [PreviousStart, Start) имеет ту же длину, что и текущий.
func Resolve(p Period, now time.Time) Range {
	var start time.Time

	switch Parse(string(p)) {
	case Today:
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	case Month:
		start = addMonths(now, -1)
	case Year:
		start = addMonths(now, -12)
	default:
		start = now.AddDate(0, 0, -7)
	}

	return Range{Start: start, End: now, PreviousStart: start.Add(-now.Sub(start))}
}

// addMonths сдвигает t на n календарных месяцев. День прижимается к последнему дню
// целевого месяца: 31 марта минус месяц даёт 28 февраля.
func addMonths(t time.Time, n int) time.Time {
	first := time.Date(t.Year(), t.Month()+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	last := first.AddDate(0, 1, -1).Day()
	return first.AddDate(0, 0, min(t.Day(), last)-1)
}

// Contains сообщает, попадает ли момент t в [Start, End).
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Previous возвращает предыдущий интервал [PreviousStart, Start).
func (r Range) Previous() Range {
	return Range{Start: r.PreviousStart, End: r.Start, PreviousStart: r.PreviousStart}
}

// Location возвращает часовой пояс интервала.
func (r Range) Location() *time.Location {
	return r.End.Location()
}
