package notification

import (
	"context"
	"regexp"
)

// EmailMessage is one outbound alert email with a plain text body and
// an HTML alternative.
type EmailMessage struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Trap is one outbound SNMP v2c trap.
type Trap struct {
	Host      string
	Port      int
	Community string
	OID       string
	Value     string
}

// EmailSender delivers alert emails.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// TrapSender delivers SNMP traps. Implementations open an independent
// session per call and always close it.
type TrapSender interface {
	SendTrap(ctx context.Context, trap Trap) error
}

// Strict numeric dotted form, e.g. ".1.3.6.1.4.1.9999.1.1".
var oidPattern = regexp.MustCompile(`^(\.\d+)+$`)

// ValidOID reports whether an OID is in strict numeric dotted form.
// Malformed OIDs must never reach the transport layer.
func ValidOID(oid string) bool {
	return oidPattern.MatchString(oid)
}
