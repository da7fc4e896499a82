package notify

import (
	"time"

	ics "github.com/arran4/golang-ical"
)

// inviteParams はカレンダー招待の内容。
type inviteParams struct {
	UID         string
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	Organizer   Party
	Attendees   []Party
	Stamp       time.Time
}

// buildInvite はMETHOD:REQUESTのiCalendarを生成する。
func buildInvite(p inviteParams) []byte {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodRequest)
	cal.SetProductId("-//Schedly//Booking//EN")

	event := cal.AddEvent(p.UID)
	event.SetDtStampTime(p.Stamp.UTC())
	event.SetStartAt(p.Start.UTC())
	end := p.End
	if end.IsZero() {
		end = p.Start
	}
	event.SetEndAt(end.UTC())
	event.SetSummary(p.Summary)
	if p.Description != "" {
		event.SetDescription(p.Description)
	}
	if p.Location != "" {
		event.SetLocation(p.Location)
		event.SetURL(p.Location)
	}
	if p.Organizer.Email != "" {
		event.SetOrganizer("mailto:"+p.Organizer.Email, ics.WithCN(nameOrEmail(p.Organizer)))
	}
	for _, a := range p.Attendees {
		if a.Email == "" {
			continue
		}
		event.AddAttendee(a.Email,
			ics.WithCN(nameOrEmail(a)),
			ics.CalendarUserTypeIndividual,
			ics.ParticipationStatusNeedsAction,
			ics.ParticipationRoleReqParticipant,
			ics.WithRSVP(true),
		)
	}
	event.SetStatus(ics.ObjectStatusConfirmed)
	event.SetProperty(ics.ComponentPropertySequence, "0")

	return []byte(cal.Serialize())
}
