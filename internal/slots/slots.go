// Package slots описывает сетку часовых слотов записи.
package slots

import (
	"fmt"
	"time"

	"github.com/mmeshcher/petcare-system/internal/model"
)

const (
	openHour  = 8
	closeHour = 18
	lunchHour = 12
)

// All возвращает все слоты рабочего дня по возрастанию времени начала.
func All() []model.TimeSlot {
	res := make([]model.TimeSlot, 0, closeHour-openHour-1)
	for h := openHour; h < closeHour; h++ {
		if h == lunchHour {
			continue
		}
		res = append(res, model.TimeSlot(fmt.Sprintf("%02d:00-%02d:00", h, h+1)))
	}
	return res
}

// Valid сообщает, входит ли слот в сетку.
func Valid(s model.TimeSlot) bool {
	_, ok := startHour(s)
	return ok
}

// StartsAt возвращает момент начала слота в указанную дату.
func StartsAt(date time.Time, s model.TimeSlot) (time.Time, bool) {
	h, ok := startHour(s)
	if !ok {
		return time.Time{}, false
	}
	return time.Date(date.Year(), date.Month(), date.Day(), h, 0, 0, 0, date.Location()), true
}

func startHour(s model.TimeSlot) (int, bool) {
	var from, to int
	if n, err := fmt.Sscanf(string(s), "%02d:00-%02d:00", &from, &to); err != nil || n != 2 {
		return 0, false
	}
	if to != from+1 || from < openHour || from >= closeHour || from == lunchHour {
		return 0, false
	}
	if string(s) != fmt.Sprintf("%02d:00-%02d:00", from, to) {
		return 0, false
	}
	return from, true
}

// Available возвращает свободные слоты даты: занятые активными записями и уже начавшиеся исключаются.
func Available(date time.Time, taken []model.TimeSlot, now time.Time) []model.TimeSlot {
	busy := make(map[model.TimeSlot]struct{}, len(taken))
	for _, s := range taken {
		busy[s] = struct{}{}
	}

	var res []model.TimeSlot
	for _, s := range All() {
		if _, ok := busy[s]; ok {
			continue
		}
		start, _ := StartsAt(date, s)
		if !start.After(now) {
			continue
		}
		res = append(res, s)
	}
	return res
}
