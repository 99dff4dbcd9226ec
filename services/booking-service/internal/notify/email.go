package notify

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier mails the organization owner over unauthenticated SMTP
// (Mailpit-compatible) with a calendar invite attached.
type EmailNotifier struct {
	addr     string
	from     string
	sendMail sendMailFunc
	now      func() time.Time
}

func NewEmailNotifier(host string, port string, from string) *EmailNotifier {
	host = strings.TrimSpace(host)
	port = strings.TrimSpace(port)
	from = strings.TrimSpace(from)
	if from == "" {
		from = "no-reply@proofline.local"
	}
	return &EmailNotifier{
		addr:     fmt.Sprintf("%s:%s", host, port),
		from:     from,
		sendMail: smtp.SendMail,
		now:      time.Now,
	}
}

func (e *EmailNotifier) Notify(_ context.Context, n Notification) error {
	to := strings.TrimSpace(n.Organization.OwnerEmail)
	if to == "" {
		return nil
	}
	msg, err := e.buildMessage(to, n)
	if err != nil {
		return err
	}
	if err := e.sendMail(e.addr, nil, e.from, []string{to}, msg); err != nil {
		return fmt.Errorf("send email to %s: %w", to, err)
	}
	return nil
}

func (e *EmailNotifier) buildMessage(to string, n Notification) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	text, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/plain; charset=utf-8"},
	})
	if err != nil {
		return nil, err
	}
	if _, err := text.Write([]byte(n.Text() + "\r\n")); err != nil {
		return nil, err
	}

	invite, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":        {`text/calendar; charset=utf-8; method=REQUEST`},
		"Content-Disposition": {`attachment; filename="invite.ics"`},
	})
	if err != nil {
		return nil, err
	}
	if _, err := invite.Write([]byte(Invite(n, e.from, e.now()))); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\n",
		headerValue(e.from), headerValue(to), mime.QEncoding.Encode("utf-8", headerValue(n.Subject())))
	fmt.Fprintf(&msg, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mw.Boundary())
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}

// headerValue keeps a value on a single header line.
func headerValue(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}

// Invite renders the booking as an iCalendar REQUEST with the customer as
// attendee.
func Invite(n Notification, organizer string, stamp time.Time) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodRequest)
	cal.SetProductId("-//Proofline//Booking//EN")

	event := cal.AddEvent(n.Booking.ID + "@proofline")
	event.SetDtStampTime(stamp.UTC())
	event.SetStartAt(n.Booking.Start.UTC())
	event.SetEndAt(n.Booking.End.UTC())
	event.SetSummary(fmt.Sprintf("%s x %s", n.Organization.Name, n.Booking.CustomerName))
	event.SetDescription(n.Text())
	if n.Booking.MeetingLink != "" {
		event.SetLocation(n.Booking.MeetingLink)
		event.SetURL(n.Booking.MeetingLink)
	}
	event.SetOrganizer("mailto:"+organizer, ics.WithCN(n.Organization.Name))
	event.AddAttendee("mailto:"+n.Booking.CustomerEmail, ics.WithCN(n.Booking.CustomerName))
	return cal.Serialize()
}
