// Package availability は週次の空き時間設定と予約可能枠の生成を提供する。
package availability

import (
	"time"

	"github.com/hitoshi/schedly/internal/model"
)

// DefaultHorizonDays は枠を生成する先読み日数。今日を含めて31日分となる。
const DefaultHorizonDays = 30

// DaySlots は1日分の予約可能枠。
type DaySlots struct {
	Date  time.Time // locにおける0時
	Slots []model.TimeOfDay
}

// Engine は週次の時間帯を具体的な予約可能枠に展開する。
// 副作用を持たず、同じ入力に対して常に同じ結果を返す。
type Engine struct {
	location    *time.Location
	horizonDays int
}

// NewEngine はEngineを生成する。locがnilの場合はtime.Localを使う。
// horizonDaysが0以下の場合はDefaultHorizonDaysを使う。
func NewEngine(loc *time.Location, horizonDays int) *Engine {
	if loc == nil {
		loc = time.Local
	}
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	return &Engine{location: loc, horizonDays: horizonDays}
}

// Location は日付の判定に使うタイムゾーンを返す。
func (e *Engine) Location() *time.Location {
	return e.location
}

// Generate はtodayの日付から先読み日数分の予約可能枠を返す。
//
//   - 各日の曜日に一致する最初の時間帯を使う（時間帯は開始時刻順に並んでいる前提）。
//   - 枠の開始時刻 current は current + duration <= 終了時刻 を満たす間だけ出力する。
//   - 次の枠は current + duration + gap から始まる。gapは枠と枠の間にのみ入る。
//   - 枠が1つもない日は結果に含めない。
//
// availabilityがnil、またはdurationMinutesが0以下の場合は空を返す。
func (e *Engine) Generate(a *model.Availability, durationMinutes int, today time.Time) []DaySlots {
	result := make([]DaySlots, 0)
	if a == nil || durationMinutes <= 0 {
		return result
	}

	gap := a.GapMinutes
	if gap < 0 {
		gap = 0
	}

	local := today.In(e.location)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, e.location)

	for offset := 0; offset <= e.horizonDays; offset++ {
		date := start.AddDate(0, 0, offset)
		window, ok := windowFor(a.Days, model.DayOfWeekFrom(date.Weekday()))
		if !ok {
			continue
		}

		slots := slotsInWindow(window, durationMinutes, gap)
		if len(slots) == 0 {
			continue
		}
		result = append(result, DaySlots{Date: date, Slots: slots})
	}

	return result
}

// windowFor は指定曜日に一致する最初の時間帯を返す。
func windowFor(days []model.DayAvailability, day model.DayOfWeek) (model.DayAvailability, bool) {
	for _, d := range days {
		if d.Day == day {
			return d, true
		}
	}
	return model.DayAvailability{}, false
}

// slotsInWindow は1つの時間帯から枠の開始時刻を切り出す。
func slotsInWindow(window model.DayAvailability, duration, gap int) []model.TimeOfDay {
	var slots []model.TimeOfDay
	for current := int(window.Start); current+duration <= int(window.End); current += duration + gap {
		slots = append(slots, model.TimeOfDay(current))
	}
	return slots
}
