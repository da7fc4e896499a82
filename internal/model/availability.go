package model

import (
	"fmt"
	"strings"
	"time"
)

// Availability はユーザーごとの週次の空き時間設定を表す。ユーザーと1対1。
type Availability struct {
	ID         string
	UserID     string
	GapMinutes int
	Days       []DayAvailability
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DayAvailability は曜日ごとの受付時間帯を表す。
type DayAvailability struct {
	ID             string
	AvailabilityID string
	Day            DayOfWeek
	Start          TimeOfDay
	End            TimeOfDay
}

// DayOfWeek は曜日を表す。
type DayOfWeek string

const (
	Monday    DayOfWeek = "MONDAY"
	Tuesday   DayOfWeek = "TUESDAY"
	Wednesday DayOfWeek = "WEDNESDAY"
	Thursday  DayOfWeek = "THURSDAY"
	Friday    DayOfWeek = "FRIDAY"
	Saturday  DayOfWeek = "SATURDAY"
	Sunday    DayOfWeek = "SUNDAY"
)

var weekdays = map[time.Weekday]DayOfWeek{
	time.Sunday:    Sunday,
	time.Monday:    Monday,
	time.Tuesday:   Tuesday,
	time.Wednesday: Wednesday,
	time.Thursday:  Thursday,
	time.Friday:    Friday,
	time.Saturday:  Saturday,
}

// DayOfWeekFrom はtime.Weekdayを対応するDayOfWeekに変換する。
func DayOfWeekFrom(w time.Weekday) DayOfWeek {
	return weekdays[w]
}

// ParseDayOfWeek は曜日名を解析する。大文字小文字は区別しない。
func ParseDayOfWeek(s string) (DayOfWeek, error) {
	d := DayOfWeek(strings.ToUpper(strings.TrimSpace(s)))
	for _, v := range weekdays {
		if v == d {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown day of week: %q", s)
}

// TimeOfDay は0時からの経過分で表した時刻。
type TimeOfDay int

// MinutesPerDay は1日の分数。TimeOfDayの上限（24:00）でもある。
const MinutesPerDay = 24 * 60

// ParseTimeOfDay は "HH:MM" 形式の時刻を解析する。"24:00" は終了時刻として許容する。
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	if s == "24:00" {
		return MinutesPerDay, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

// String は "HH:MM" 形式の文字列を返す。
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}
