package transport

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
)

var (
	// ErrPermissionDenied means the process may not open raw sockets.
	ErrPermissionDenied = errors.New("permission denied opening raw ICMP socket")
	// ErrUnsupportedFamily means the address family is not available.
	ErrUnsupportedFamily = errors.New("address family not supported")
)

// OpenError is returned by Open.
type OpenError struct {
	Network string
	Err     error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("open %s socket: %v", e.Network, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// SendError is returned by Send.
type SendError struct {
	Dst netip.Addr
	Err error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send to %s: %v", e.Dst, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Fatal reports whether the socket can no longer be used.
func (e *SendError) Fatal() bool { return isFatal(e.Err) }

// ReceiveError is returned by Receive.
type ReceiveError struct {
	Err error
}

func (e *ReceiveError) Error() string {
	return fmt.Sprintf("receive: %v", e.Err)
}

func (e *ReceiveError) Unwrap() error { return e.Err }

// Fatal reports whether the socket can no longer be used.
func (e *ReceiveError) Fatal() bool { return isFatal(e.Err) }

// IsFatal reports whether err, as returned by Send or Receive, means the
// socket is unusable.
func IsFatal(err error) bool {
	var f interface{ Fatal() bool }
	return errors.As(err, &f) && f.Fatal()
}

func isFatal(err error) bool {
	return errors.Is(err, net.ErrClosed) || isFatalErrno(err)
}

// classifyOpen maps an OS error from socket creation to one of the package
// sentinels, keeping the original error in the chain.
func classifyOpen(err error) error {
	switch {
	case isPermissionErrno(err):
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	case isFamilyErrno(err):
		return fmt.Errorf("%w: %w", ErrUnsupportedFamily, err)
	}
	return err
}
