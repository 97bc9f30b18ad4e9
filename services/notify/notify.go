// Package notifysvc emails users about coursework status changes and newly scheduled lectures.
package notifysvc

import (
	"bytes"
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/calendar"
	"github.com/trezcool/academia/core/coursework"
	"github.com/trezcool/academia/core/group"
	"github.com/trezcool/academia/core/user"
)

const (
	statusChangedTemplate    = "status_changed"
	lectureScheduledTemplate = "lecture_scheduled"
	whenLayout               = "Mon, 02 Jan 2006 15:04 MST"
)

// notified transitions; the others are triggered by the student or the instructor themselves
var notifiedStatuses = map[coursework.Status]bool{
	coursework.StatusActive:  true,
	coursework.StatusPastDue: true,
}

type UserDirectory interface {
	GetByID(ctx context.Context, id string) (user.User, error)
	Query(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error)
}

type Service struct {
	users  UserDirectory
	mailer core.EmailService
	logger core.Logger
	loc    *time.Location
}

var (
	_ coursework.Notifier      = (*Service)(nil)
	_ calendar.LectureNotifier = (*Service)(nil)
)

func NewService(users UserDirectory, mailer core.EmailService, logger core.Logger, conf *core.Config) *Service {
	return &Service{users: users, mailer: mailer, logger: logger, loc: conf.Location()}
}

func address(usr user.User) (mail.Address, bool) {
	if usr.Email == "" || !usr.IsActive {
		return mail.Address{}, false
	}
	return mail.Address{Name: usr.Name, Address: usr.Email}, true
}

func (svc *Service) StatusChanged(ctx context.Context, item coursework.WorkItem, from coursework.Status) {
	if !notifiedStatuses[item.Status] {
		return
	}
	student, err := svc.users.GetByID(ctx, item.StudentID)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("notifying status change of %s: %v", item.ID, err), err)
		return
	}
	to, ok := address(student)
	if !ok {
		return
	}

	svc.mailer.SendMessages(&core.EmailMessage{
		To:           []mail.Address{to},
		Subject:      fmt.Sprintf("%s is %s", item.Title, item.Status),
		TemplateName: statusChangedTemplate,
		TemplateData: map[string]interface{}{
			"Name":   student.Name,
			"Kind":   string(item.Kind),
			"Title":  item.Title,
			"Status": string(item.Status),
			"From":   string(from),
			"DueAt":  item.DueAt.In(svc.loc).Format(whenLayout),
			"ItemID": item.ID,
		},
	})
}

func (svc *Service) LectureScheduled(ctx context.Context, l calendar.Lecture, grp group.Group) {
	participants, err := svc.users.Query(ctx, &user.QueryFilter{IDs: grp.ParticipantIDs()}, nil)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("notifying lecture %s: %v", l.ID, err), err)
		return
	}

	var invite bytes.Buffer
	if err = calendar.EncodeLecture(&invite, l, svc.loc); err != nil {
		svc.logger.Error(fmt.Sprintf("encoding lecture %s: %v", l.ID, err), err)
		return
	}

	messages := make([]*core.EmailMessage, 0, len(participants))
	for _, usr := range participants {
		to, ok := address(usr)
		if !ok {
			continue
		}
		msg := &core.EmailMessage{
			To:           []mail.Address{to},
			Subject:      "New lecture: " + l.Title,
			TemplateName: lectureScheduledTemplate,
			TemplateData: map[string]interface{}{
				"Name":      usr.Name,
				"Title":     l.Title,
				"Group":     grp.Name,
				"When":      l.StartTime.In(svc.loc).Format(whenLayout),
				"Recurring": l.IsRecurring,
				"Location":  l.Location,
			},
		}
		if err = msg.Attach(bytes.NewReader(invite.Bytes()), "lecture.ics", "text/calendar"); err != nil {
			svc.logger.Error(fmt.Sprintf("attaching invitation: %v", err), err)
			continue
		}
		messages = append(messages, msg)
	}
	if len(messages) > 0 {
		svc.mailer.SendMessages(messages...)
	}
}
