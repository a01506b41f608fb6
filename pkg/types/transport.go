package types

import "fmt"

// Transport identifies which echo channel carried an exchange.
type Transport string

const (
	TransportTCP Transport = "tcp"
	TransportUDP Transport = "udp"
)

func ParseTransport(s string) (Transport, error) {
	switch Transport(s) {
	case TransportTCP:
		return TransportTCP, nil
	case TransportUDP:
		return TransportUDP, nil
	default:
		return "", fmt.Errorf("unknown transport %q", s)
	}
}

func (t Transport) Valid() bool {
	return t == TransportTCP || t == TransportUDP
}

func (t Transport) String() string {
	return string(t)
}
