package notify

import (
	"bytes"
	"fmt"
	"html/template"
)

var subjects = map[Kind]string{
	KindBookingConfirmed: "Your booking %s is confirmed",
	KindPaymentFailed:    "Payment for booking %s did not go through",
	KindBookingCancelled: "Your booking %s has been cancelled",
	KindRefundIssued:     "Refund issued for booking %s",
}

var bodyTemplate = template.Must(template.New("body").Funcs(template.FuncMap{
	"money": func(cents int64, currency string) string {
		return fmt.Sprintf("%.2f %s", float64(cents)/100, currency)
	},
}).Parse(`<p>Hello {{.GuestName}},</p>
{{- if eq .Kind "booking_confirmed"}}
<p>Your table for {{.PartySize}} on {{.StartsAt.Format "Mon 2 Jan 2006 at 15:04"}} is confirmed. Reference: <strong>{{.Reference}}</strong>.</p>
{{- else if eq .Kind "payment_failed"}}
<p>We could not take payment for booking {{.Reference}}, so it was not confirmed. Please try booking again.</p>
{{- else if eq .Kind "booking_cancelled"}}
<p>Your booking {{.Reference}} on {{.StartsAt.Format "Mon 2 Jan 2006 at 15:04"}} has been cancelled.</p>
{{- else if eq .Kind "refund_issued"}}
<p>A refund of {{money .AmountCents .Currency}} for booking {{.Reference}} is on its way.</p>
{{- end}}
`))

// Render returns the subject and HTML body for msg.
func Render(msg Message) (string, string, error) {
	format, ok := subjects[msg.Kind]
	if !ok {
		return "", "", fmt.Errorf("unknown notification kind %q", msg.Kind)
	}
	var buf bytes.Buffer
	if err := bodyTemplate.Execute(&buf, msg); err != nil {
		return "", "", err
	}
	return fmt.Sprintf(format, msg.Reference), buf.String(), nil
}
