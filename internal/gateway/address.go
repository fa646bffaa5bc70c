package gateway

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
)

const maxHostnameLength = 253

// hostLabel matches one RFC 1123 hostname label.
var hostLabel = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?$`)

// ValidateAddress checks a gateway address. Accepted forms:
//
//	192.168.1.20            IPv4
//	192.168.1.20:8080       IPv4 with port
//	2001:db8::1             IPv6
//	[2001:db8::1]:8080      bracketed IPv6, optional port
//	gateway.local           hostname
//	gateway.local:8080      hostname with port
//
// Ports must be within 1..65535.
func ValidateAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("%w: empty", ErrInvalidAddress)
	}

	host, port, err := splitAddress(addr)
	if err != nil {
		return err
	}

	if port != "" {
		n, err := strconv.Atoi(port)
		if err != nil || n < 1 || n > 65535 {
			return fmt.Errorf("%w: port %q out of range in %q", ErrInvalidAddress, port, addr)
		}
	}

	if net.ParseIP(host) != nil {
		return nil
	}
	if !validHostname(host) {
		return fmt.Errorf("%w: %q is not an IP address or hostname", ErrInvalidAddress, addr)
	}
	return nil
}

// splitAddress separates an optional port from the host.
func splitAddress(addr string) (host, port string, err error) {
	if strings.HasPrefix(addr, "[") {
		end := strings.Index(addr, "]")
		if end < 0 {
			return "", "", fmt.Errorf("%w: unterminated bracket in %q", ErrInvalidAddress, addr)
		}
		host = addr[1:end]
		rest := addr[end+1:]
		switch {
		case rest == "":
			return host, "", nil
		case strings.HasPrefix(rest, ":") && len(rest) > 1:
			return host, rest[1:], nil
		default:
			return "", "", fmt.Errorf("%w: unexpected %q after bracketed host", ErrInvalidAddress, rest)
		}
	}

	if !strings.Contains(addr, ":") {
		return addr, "", nil
	}

	// A bare IPv6 address has no port.
	if ip := net.ParseIP(addr); ip != nil {
		return addr, "", nil
	}

	i := strings.LastIndex(addr, ":")
	if i == len(addr)-1 {
		return "", "", fmt.Errorf("%w: missing port in %q", ErrInvalidAddress, addr)
	}
	return addr[:i], addr[i+1:], nil
}

func validHostname(host string) bool {
	if host == "" || len(host) > maxHostnameLength {
		return false
	}
	for _, label := range strings.Split(host, ".") {
		if !hostLabel.MatchString(label) {
			return false
		}
	}
	return true
}
