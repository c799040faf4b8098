// Package notify delivers verification codes and security notices to users.
// The core treats delivery as a side-effecting collaborator: a failed
// delivery never blocks code persistence.
package notify

import "context"

// TemplateKind selects the message rendered for a delivery.
type TemplateKind string

const (
	TemplateRegistrationCode  TemplateKind = "registration_code"
	TemplateEmailChangeCode   TemplateKind = "email_change_code"
	TemplateEmailChangeNotice TemplateKind = "email_change_notice"
	TemplatePhoneChangeCode   TemplateKind = "phone_change_code"
)

// Data carries template parameters. Keys are template-specific ("code",
// "name", "new_email", "new_phone").
type Data map[string]string

// Notifier sends one message to one address. Implementations must be safe
// for concurrent use.
type Notifier interface {
	Notify(ctx context.Context, address string, kind TemplateKind, data Data) error
}
