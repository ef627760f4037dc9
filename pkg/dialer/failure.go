package dialer

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
)

// MaxHostLengthForMessages bounds host names shown in user-facing messages.
const MaxHostLengthForMessages = 40

// ErrCancelConnection is returned by a handshake step when the user backed
// out of it (for example by dismissing a password prompt). It is reported
// without any error message.
var ErrCancelConnection = errors.New("connection cancelled by user")

// ConnectionError is a connection-level failure that carries its own
// user-facing message.
type ConnectionError struct {
	Msg string
	Err error
}

func (e *ConnectionError) Error() string {
	if e.Err != nil && e.Msg == "" {
		return e.Err.Error()
	}
	return e.Msg
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// FailureKind is the category a failed dial falls into.
type FailureKind int

const (
	FailureOther FailureKind = iota
	FailureUnknownHost
	FailureIO
	FailureAccessDenied
	FailureProtocol
	FailureCancelledByUser
)

func (k FailureKind) String() string {
	switch k {
	case FailureUnknownHost:
		return "unknown-host"
	case FailureIO:
		return "io"
	case FailureAccessDenied:
		return "access-denied"
	case FailureProtocol:
		return "protocol"
	case FailureCancelledByUser:
		return "cancelled-by-user"
	default:
		return "other"
	}
}

// Classify maps a dial or handshake error to exactly one FailureKind.
func Classify(err error) FailureKind {
	if err == nil {
		return FailureOther
	}
	if errors.Is(err, ErrCancelConnection) {
		return FailureCancelledByUser
	}
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return FailureProtocol
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return FailureUnknownHost
	}
	// EACCES / EPERM, e.g. a sandbox denying outbound sockets
	if errors.Is(err, os.ErrPermission) {
		return FailureAccessDenied
	}
	if isIOError(err) {
		return FailureIO
	}
	return FailureOther
}

func isIOError(err error) bool {
	var (
		opErr      *net.OpError
		errno      syscall.Errno
		recErr     tls.RecordHeaderError
		alertErr   tls.AlertError
		verifyErr  *tls.CertificateVerificationError
		unknownCA  x509.UnknownAuthorityError
		hostErr    x509.HostnameError
		invalidErr x509.CertificateInvalidError
	)
	switch {
	case errors.As(err, &opErr), errors.As(err, &errno):
		return true
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, os.ErrDeadlineExceeded):
		return true
	case errors.As(err, &recErr), errors.As(err, &alertErr), errors.As(err, &verifyErr):
		return true
	case errors.As(err, &unknownCA), errors.As(err, &hostErr), errors.As(err, &invalidErr):
		return true
	}
	return false
}

// FailureMessage renders the user-facing text for a failure. It returns ""
// for FailureCancelledByUser.
func FailureMessage(kind FailureKind, host string, port int, err error) string {
	h := TruncateHost(host)
	switch kind {
	case FailureUnknownHost:
		return fmt.Sprintf("Unknown host: '%s'", h)
	case FailureIO:
		return fmt.Sprintf("Couldn't connect to '%s:%d':\n%s", h, port, systemMessage(err))
	case FailureAccessDenied:
		return "Access control error"
	case FailureProtocol:
		msg := ""
		var connErr *ConnectionError
		if errors.As(err, &connErr) {
			msg = connErr.Error()
		} else if err != nil {
			msg = err.Error()
		}
		return fmt.Sprintf("%s\nHost: %s:%d", msg, h, port)
	case FailureCancelledByUser:
		return ""
	default:
		return fmt.Sprintf("Couldn't connect to '%s:%d':\n%s", h, port, errText(err))
	}
}

// TruncateHost shortens host names longer than MaxHostLengthForMessages
// runes to that many runes followed by "...".
func TruncateHost(host string) string {
	r := []rune(host)
	if len(r) <= MaxHostLengthForMessages {
		return host
	}
	return string(r[:MaxHostLengthForMessages]) + "..."
}

// systemMessage strips the Go dial prefix ("dial tcp 1.2.3.4:5: connect:")
// leaving the operating system's description of the failure.
func systemMessage(err error) string {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Err != nil {
		err = opErr.Err
	}
	var sysErr *os.SyscallError
	if errors.As(err, &sysErr) && sysErr.Err != nil {
		err = sysErr.Err
	}
	return errText(err)
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
