package notify

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"
)

// SMTPNotifier delivers messages over SMTP.
type SMTPNotifier struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTP constructs an SMTP notifier from connection settings.
func NewSMTP(host string, port int, user, password, from string) *SMTPNotifier {
	return &SMTPNotifier{
		dialer: gomail.NewDialer(host, port, user, password),
		from:   from,
	}
}

func (n *SMTPNotifier) Notify(_ context.Context, address string, kind TemplateKind, data Data) error {
	subject, body, err := render(kind, data)
	if err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", address)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	if err := n.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send %s to %s: %w", kind, address, err)
	}
	return nil
}

func render(kind TemplateKind, data Data) (subject, body string, err error) {
	switch kind {
	case TemplateRegistrationCode:
		subject = "Confirm your registration"
		body = fmt.Sprintf(`
			<h3>Welcome, %s!</h3>
			<p>Your verification code is <strong>%s</strong>.</p>
			<p>The code expires in 15 minutes. If you did not sign up, you can ignore this email.</p>
		`, data["name"], data["code"])
	case TemplateEmailChangeCode:
		subject = "Confirm your new email address"
		body = fmt.Sprintf(`
			<h3>Email change requested</h3>
			<p>Your verification code is <strong>%s</strong>.</p>
			<p>The code expires in 15 minutes. If you did not request this change, you can ignore this email.</p>
		`, data["code"])
	case TemplateEmailChangeNotice:
		subject = "Your email address is being changed"
		body = fmt.Sprintf(`
			<h3>Email change in progress</h3>
			<p>A request was made to change your account email to <strong>%s</strong>.</p>
			<p>If this was not you, contact support immediately.</p>
		`, data["new_email"])
	case TemplatePhoneChangeCode:
		subject = "Confirm your new phone number"
		body = fmt.Sprintf(`
			<h3>Phone change requested</h3>
			<p>Your verification code is <strong>%s</strong>.</p>
			<p>The code expires in 15 minutes. If you did not request this change, you can ignore this email.</p>
		`, data["code"])
	default:
		return "", "", fmt.Errorf("unknown notification template: %s", kind)
	}
	return subject, body, nil
}
