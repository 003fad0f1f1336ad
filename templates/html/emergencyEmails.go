package templates

import (
	"fmt"
	"html"
	"strings"
)

// EmergencyEmailData feeds the urgent notification sent to a candidate
// responder.
type EmergencyEmailData struct {
	ResponderName string
	RequesterName string
	EmergencyType string
	Description   string
	Address       string
	Latitude      float64
	Longitude     float64
}

// RenderEmergencyNotification renders the subject, plain-text and HTML
// bodies of the notification mailed to each nearby responder.
func RenderEmergencyNotification(data EmergencyEmailData) (subject, plainText, htmlContent string) {
	subject = fmt.Sprintf("URGENT: New %s Emergency Nearby - MitraHelp", data.EmergencyType)

	address := data.Address
	if address == "" {
		address = "Location not specified"
	}
	requester := data.RequesterName
	if requester == "" {
		requester = "Anonymous User"
	}

	plainText = fmt.Sprintf(
		"Hi %s,\n\nA %s emergency was reported near you by %s.\n\n%s\n\nLocation: %s\nMap: https://www.google.com/maps?q=%v,%v\n\nOpen the MitraHelp app to accept if you can help.",
		data.ResponderName, data.EmergencyType, requester, data.Description, address, data.Latitude, data.Longitude,
	)
	htmlContent = renderBranded(subject, plainText)
	return subject, plainText, htmlContent
}

// ContactAlertData feeds the alert mailed to a requester's pre-registered
// emergency contacts.
type ContactAlertData struct {
	UserName      string
	EmergencyType string
	Description   string
	Address       string
	MapLink       string
}

// RenderContactAlert renders the alert sent to an emergency contact.
func RenderContactAlert(data ContactAlertData) (subject, plainText, htmlContent string) {
	subject = fmt.Sprintf("Emergency Alert: %s needs help - MitraHelp", data.UserName)

	address := data.Address
	if address == "" {
		address = "Unknown Location"
	}
	plainText = fmt.Sprintf(
		"%s has reported a %s emergency through MitraHelp.\n\n%s\n\nLocation: %s\nMap: %s\n\nPlease try to reach them.",
		data.UserName, data.EmergencyType, data.Description, address, data.MapLink,
	)
	htmlContent = renderBranded(subject, plainText)
	return subject, plainText, htmlContent
}

// renderBranded wraps plain text in the shared branded layout. The body
// is HTML-escaped and newlines become <br> tags.
func renderBranded(subject, bodyContent string) string {
	escaped := html.EscapeString(bodyContent)
	htmlBody := strings.ReplaceAll(escaped, "\n", "<br>")
	safeSubject := html.EscapeString(subject)

	return fmt.Sprintf(`<!DOCTYPE html PUBLIC "-//W3C//DTD XHTML 1.0 Strict//EN" "http://www.w3.org/TR/xhtml1/DTD/xhtml1-strict.dtd">
<html xmlns="http://www.w3.org/1999/xhtml">
<head>
  <meta http-equiv="Content-Type" content="text/html; charset=utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1, minimum-scale=1, maximum-scale=1">
  <title>%s</title>
  <style type="text/css">
    body { font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; margin: 0; padding: 0; background-color: #f4f4f7; }
    .container { max-width: 600px; margin: 0 auto; background-color: #ffffff; }
    .header { background: linear-gradient(135deg, #e53e3e 0%%, #c53030 100%%); padding: 40px 30px; text-align: center; }
    .header h1 { color: #fff; margin: 0; font-size: 24px; font-weight: 700; }
    .content { padding: 40px 30px; color: #1a202c; line-height: 1.6; font-size: 15px; }
    .footer { padding: 30px; text-align: center; color: #6b7280; font-size: 12px; border-top: 1px solid rgba(0,0,0,0.1); }
  </style>
</head>
<body>
  <div class="container">
    <div class="header">
      <h1>%s</h1>
    </div>
    <div class="content">
      %s
    </div>
    <div class="footer">
      <p>&copy; MitraHelp &mdash; community emergency response</p>
    </div>
  </div>
</body>
</html>`, safeSubject, safeSubject, htmlBody)
}
