package service

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"text/template"

	"cubenotary/internal/models"
)

type messageData struct {
	Brand     string
	Booking   *models.Booking
	Amount    string
	Reason    string
	Reference string
}

type messageTemplate struct {
	subject *template.Template
	text    *template.Template
	short   *template.Template
	html    *htmltemplate.Template
}

type rendered struct {
	Subject string
	Text    string
	Short   string
	HTML    string
}

const htmlLayout = `<!DOCTYPE html><html><body style="font-family:Arial,sans-serif;color:#222">
<h2>{{.Brand}}</h2>
<p>Hello {{.Booking.CustomerName}},</p>
<p>%s</p>
<table cellpadding="4">
<tr><td><b>Booking ID</b></td><td>{{.Booking.BookingID}}</td></tr>
<tr><td><b>Service</b></td><td>{{.Booking.ServiceType}}</td></tr>
<tr><td><b>Date</b></td><td>{{.Booking.AppointmentDate}} at {{.Booking.AppointmentTime}}</td></tr>
<tr><td><b>Location</b></td><td>{{.Booking.MeetingAddress}}</td></tr>
<tr><td><b>Fee</b></td><td>${{.Amount}}</td></tr>
</table>
</body></html>`

var messageTemplates = map[models.NotificationKind]messageTemplate{
	models.KindBookingCreated: mustTemplate(models.KindBookingCreated,
		`Booking received: {{.Booking.BookingID}}`,
		`Hello {{.Booking.CustomerName}}, we received your {{.Booking.ServiceType}} booking for {{.Booking.AppointmentDate}} at {{.Booking.AppointmentTime}}. Complete the ${{.Amount}} payment to confirm it. Booking ID: {{.Booking.BookingID}}.`,
		`New booking {{.Booking.BookingID}}: {{.Booking.ServiceType}} {{.Booking.AppointmentDate}} {{.Booking.AppointmentTime}}, {{.Booking.CustomerName}} ({{.Booking.CustomerEmail}}), ${{.Amount}}`,
		`We received your booking. Complete the payment to confirm your appointment.`),
	models.KindPaymentConfirmed: mustTemplate(models.KindPaymentConfirmed,
		`Appointment confirmed: {{.Booking.AppointmentDate}} {{.Booking.AppointmentTime}}`,
		`Hello {{.Booking.CustomerName}}, your payment of ${{.Amount}} was received and your {{.Booking.ServiceType}} appointment on {{.Booking.AppointmentDate}} at {{.Booking.AppointmentTime}} is confirmed. Booking ID: {{.Booking.BookingID}}.`,
		`Paid: {{.Booking.BookingID}} {{.Booking.AppointmentDate}} {{.Booking.AppointmentTime}} ${{.Amount}}`,
		`Your payment was received and your appointment is confirmed.`),
	models.KindPaymentFailed: mustTemplate(models.KindPaymentFailed,
		`Payment failed for booking {{.Booking.BookingID}}`,
		`Hello {{.Booking.CustomerName}}, the payment for your booking {{.Booking.BookingID}} did not go through and the time slot was released. Please book again to choose a new time.`,
		`Payment failed: {{.Booking.BookingID}} {{.Booking.AppointmentDate}} {{.Booking.AppointmentTime}}`,
		`The payment for your booking did not go through and the time slot was released.`),
	models.KindBookingCancelled: mustTemplate(models.KindBookingCancelled,
		`Booking cancelled: {{.Booking.BookingID}}`,
		`Hello {{.Booking.CustomerName}}, your appointment on {{.Booking.AppointmentDate}} at {{.Booking.AppointmentTime}} was cancelled.{{if eq (print .Booking.PaymentStatus) "refunded"}} Your payment of ${{.Amount}} has been refunded.{{end}} Booking ID: {{.Booking.BookingID}}.`,
		`Cancelled: {{.Booking.BookingID}} {{.Booking.AppointmentDate}} {{.Booking.AppointmentTime}}`,
		`Your appointment was cancelled.`),
	models.KindBookingCompleted: mustTemplate(models.KindBookingCompleted,
		`Thank you for choosing {{.Brand}}`,
		`Hello {{.Booking.CustomerName}}, your {{.Booking.ServiceType}} appointment {{.Booking.BookingID}} is complete. Thank you!`,
		`Completed: {{.Booking.BookingID}}`,
		`Your appointment is complete. Thank you!`),
	models.KindBookingReminder: mustTemplate(models.KindBookingReminder,
		`Reminder: appointment tomorrow at {{.Booking.AppointmentTime}}`,
		`Hello {{.Booking.CustomerName}}, this is a reminder of your {{.Booking.ServiceType}} appointment tomorrow, {{.Booking.AppointmentDate}} at {{.Booking.AppointmentTime}}, at {{.Booking.MeetingAddress}}. Please bring a valid photo ID.`,
		`{{.Brand}}: reminder of your appointment tomorrow at {{.Booking.AppointmentTime}}, {{.Booking.MeetingAddress}}. Ref {{.Booking.BookingID}}`,
		`This is a reminder of your appointment tomorrow. Please bring a valid photo ID.`),
	models.KindPaymentAnomaly: mustTemplate(models.KindPaymentAnomaly,
		`Payment anomaly on booking {{.Booking.BookingID}}`,
		`Payment {{.Reference}} for booking {{.Booking.BookingID}} was not applied: {{.Reason}}`,
		`Payment anomaly {{.Booking.BookingID}} ({{.Reference}}): {{.Reason}}`,
		`A payment for this booking needs operator review.`),
}

func mustTemplate(kind models.NotificationKind, subject, text, short, htmlIntro string) messageTemplate {
	name := string(kind)
	return messageTemplate{
		subject: template.Must(template.New(name + "_subject").Parse(subject)),
		text:    template.Must(template.New(name + "_text").Parse(text)),
		short:   template.Must(template.New(name + "_short").Parse(short)),
		html:    htmltemplate.Must(htmltemplate.New(name + "_html").Parse(fmt.Sprintf(htmlLayout, htmlIntro))),
	}
}

func render(kind models.NotificationKind, data messageData) (*rendered, error) {
	t, ok := messageTemplates[kind]
	if !ok {
		return nil, fmt.Errorf("no template for %s", kind)
	}
	var out rendered
	var buf bytes.Buffer
	for _, step := range []struct {
		exec func() error
		dst  *string
	}{
		{func() error { return t.subject.Execute(&buf, data) }, &out.Subject},
		{func() error { return t.text.Execute(&buf, data) }, &out.Text},
		{func() error { return t.short.Execute(&buf, data) }, &out.Short},
		{func() error { return t.html.Execute(&buf, data) }, &out.HTML},
	} {
		buf.Reset()
		if err := step.exec(); err != nil {
			return nil, fmt.Errorf("render %s: %w", kind, err)
		}
		*step.dst = buf.String()
	}
	return &out, nil
}
