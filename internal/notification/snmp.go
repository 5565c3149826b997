package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/gosnmp/gosnmp"
)

// SNMPTrapSender delivers v2c traps. Every call uses its own session
// so a stuck receiver cannot wedge the dispatcher.
type SNMPTrapSender struct {
	timeout time.Duration
}

// NewSNMPTrapSender creates a trap sender with a per-send timeout.
func NewSNMPTrapSender(timeout time.Duration) *SNMPTrapSender {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SNMPTrapSender{timeout: timeout}
}

func (s *SNMPTrapSender) SendTrap(ctx context.Context, trap Trap) error {
	port := trap.Port
	if port == 0 {
		port = 162
	}

	session := &gosnmp.GoSNMP{
		Target:    trap.Host,
		Port:      uint16(port),
		Community: trap.Community,
		Version:   gosnmp.Version2c,
		Timeout:   s.timeout,
		Retries:   1,
	}

	if err := session.Connect(); err != nil {
		return fmt.Errorf("failed to connect to SNMP receiver %s: %w", trap.Host, err)
	}
	defer session.Conn.Close()

	pdu := gosnmp.SnmpPDU{
		Name:  trap.OID,
		Type:  gosnmp.OctetString,
		Value: trap.Value,
	}

	if _, err := session.SendTrap(gosnmp.SnmpTrap{Variables: []gosnmp.SnmpPDU{pdu}}); err != nil {
		return fmt.Errorf("failed to send trap to %s: %w", trap.Host, err)
	}
	return nil
}
