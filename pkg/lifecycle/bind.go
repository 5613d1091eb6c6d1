package lifecycle

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// AddressKind identifies which bind option produced an Address.
type AddressKind int

const (
	// AddressDefault listens on the configured default host and port.
	AddressDefault AddressKind = iota
	// AddressHostname listens on a TCP host and port; unset parts fall back
	// to the defaults.
	AddressHostname
	// AddressUnix listens on a unix domain socket path.
	AddressUnix
)

func (k AddressKind) String() string {
	switch k {
	case AddressDefault:
		return "default"
	case AddressHostname:
		return "hostname"
	case AddressUnix:
		return "unix"
	default:
		return "unknown"
	}
}

// BindOptions are the four optional, mutually exclusive listen settings
// accepted on the command line. A nil field is absent.
type BindOptions struct {
	Hostname   *string
	Port       *int
	Bind       *string
	UnixSocket *string
}

// Address is a resolved listen target.
type Address struct {
	Kind AddressKind

	// Hostname is empty when the default host applies.
	Hostname string

	// Port is only meaningful when HasPort is true; 0 asks for an
	// ephemeral port.
	Port    int
	HasPort bool

	// Path is the unix socket path for AddressUnix.
	Path string
}

// ResolveBindTarget maps bind options to exactly one listen address.
//
//   - nothing set: AddressDefault
//   - only UnixSocket: AddressUnix
//   - only Bind: "host:port" split on the last colon
//   - Hostname and/or Port: AddressHostname
//
// Every other combination fails with ErrConflictingBindOptions. An explicit
// port outside 0-65535 fails with ErrPortOutOfRange.
func ResolveBindTarget(opts BindOptions) (Address, error) {
	hasHostPort := opts.Hostname != nil || opts.Port != nil

	switch {
	case opts.UnixSocket != nil:
		if hasHostPort || opts.Bind != nil {
			return Address{}, ErrConflictingBindOptions
		}
		return Address{Kind: AddressUnix, Path: *opts.UnixSocket}, nil

	case opts.Bind != nil:
		if hasHostPort {
			return Address{}, ErrConflictingBindOptions
		}
		return parseBind(*opts.Bind)

	case hasHostPort:
		addr := Address{Kind: AddressHostname}
		if opts.Hostname != nil {
			addr.Hostname = *opts.Hostname
		}
		if opts.Port != nil {
			if !validPort(*opts.Port) {
				return Address{}, fmt.Errorf("%w: %d", ErrPortOutOfRange, *opts.Port)
			}
			addr.Port = *opts.Port
			addr.HasPort = true
		}
		return addr, nil

	default:
		return Address{Kind: AddressDefault}, nil
	}
}

// parseBind splits "host:port" on the last colon. An empty host or an
// unparsable port leaves that part to the defaults; a numeric port out of
// range is an error. Bracketed IPv6 hosts such as "[::1]:8080" have their
// brackets removed.
func parseBind(bind string) (Address, error) {
	addr := Address{Kind: AddressHostname}

	idx := strings.LastIndex(bind, ":")
	if idx < 0 {
		addr.Hostname = bind
		return addr, nil
	}

	host := bind[:idx]
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		host = host[1 : len(host)-1]
	}
	addr.Hostname = host

	port, err := strconv.Atoi(bind[idx+1:])
	if err != nil {
		return addr, nil
	}
	if !validPort(port) {
		return Address{}, fmt.Errorf("%w: %d", ErrPortOutOfRange, port)
	}
	addr.Port = port
	addr.HasPort = true
	return addr, nil
}

func validPort(p int) bool {
	return p >= 0 && p <= 65535
}

// Resolve returns the net.Listen network and address for this target,
// filling unset parts from the defaults.
func (a Address) Resolve(defaultHost string, defaultPort int) (network, address string) {
	if a.Kind == AddressUnix {
		return "unix", a.Path
	}

	host, port := defaultHost, defaultPort
	if a.Kind == AddressHostname {
		if a.Hostname != "" {
			host = a.Hostname
		}
		if a.HasPort {
			port = a.Port
		}
	}
	return "tcp", net.JoinHostPort(host, strconv.Itoa(port))
}

func (a Address) String() string {
	switch a.Kind {
	case AddressUnix:
		return "unix:" + a.Path
	case AddressHostname:
		host := a.Hostname
		if host == "" {
			host = "<default>"
		}
		port := "<default>"
		if a.HasPort {
			port = strconv.Itoa(a.Port)
		}
		return fmt.Sprintf("%s:%s", host, port)
	default:
		return "<default>"
	}
}
