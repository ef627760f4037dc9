package dialer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"vncconn/pkg/model"
)

// ErrBusy is returned by Start while a previous attempt is still connecting.
var ErrBusy = errors.New("dial already in progress")

// Presenter receives progress and the outcome of a dial. Its methods are
// called through the Dialer's Executor, never concurrently.
type Presenter interface {
	ShowMessage(text string)
	ShowConnectionErrorDialog(text string)
	ClearMessage()
	// SuccessfulConnection hands over ownership of conn.
	SuccessfulConnection(conn net.Conn)
	ConnectionFailed()
}

// State of the current (or last) attempt.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateSucceeded
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateSucceeded:
		return "succeeded"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// DialFunc opens the raw TCP connection; net.Dialer.DialContext by default.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// HandshakeFunc runs on a freshly opened connection before it is handed to
// the presenter. Returning a *ConnectionError or ErrCancelConnection selects
// the matching failure report.
type HandshakeFunc func(ctx context.Context, conn net.Conn) error

// Option customises a Dialer.
type Option func(*Dialer)

// WithTimeout bounds the TCP connect; zero leaves it to the OS.
func WithTimeout(d time.Duration) Option {
	return func(dl *Dialer) { dl.timeout = d }
}

// WithDialFunc replaces the TCP dialer.
func WithDialFunc(fn DialFunc) Option {
	return func(dl *Dialer) { dl.dial = fn }
}

// WithTLSConfig sets the base config for secure profiles. ServerName is
// filled from the profile host when empty.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(dl *Dialer) { dl.tlsConfig = cfg }
}

// WithExecutor sets where presenter callbacks run. Defaults to Inline on the
// worker goroutine.
func WithExecutor(exec Executor) Option {
	return func(dl *Dialer) { dl.exec = exec }
}

// WithHandshake installs a post-connect step.
func WithHandshake(fn HandshakeFunc) Option {
	return func(dl *Dialer) { dl.handshake = fn }
}

// WithLogf replaces log.Printf for diagnostics.
func WithLogf(logf func(format string, args ...interface{})) Option {
	return func(dl *Dialer) { dl.logf = logf }
}

// Dialer establishes one plain or TLS connection at a time in the
// background, reporting progress and the outcome to a Presenter.
type Dialer struct {
	presenter Presenter
	exec      Executor
	timeout   time.Duration
	dial      DialFunc
	tlsConfig *tls.Config
	handshake HandshakeFunc
	logf      func(format string, args ...interface{})

	mu      sync.Mutex
	state   State
	current *attempt
}

type attempt struct {
	profile   model.Profile
	secure    bool
	parent    context.Context
	cancel    context.CancelFunc
	cancelled atomic.Bool
	progress  chan string
	done      chan struct{}
}

func New(p Presenter, opts ...Option) *Dialer {
	d := &Dialer{presenter: p, exec: Inline, logf: log.Printf}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start dials p in a new goroutine. ctx cancellation interrupts the attempt
// and is reported as "Interrupted"; Cancel is reported as "Cancelled".
func (d *Dialer) Start(ctx context.Context, p model.Profile, secure bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == StateConnecting {
		return ErrBusy
	}
	dctx, cancel := context.WithCancel(ctx)
	a := &attempt{
		profile:  p,
		secure:   secure,
		parent:   ctx,
		cancel:   cancel,
		progress: make(chan string, 1),
		done:     make(chan struct{}),
	}
	d.current = a
	d.state = StateConnecting
	go d.run(dctx, a)
	return nil
}

// Cancel asks the in-flight attempt to stop. It reports false when nothing
// is connecting or cancel was already requested.
func (d *Dialer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	a := d.current
	if d.state != StateConnecting || a == nil {
		return false
	}
	if !a.cancelled.CompareAndSwap(false, true) {
		return false
	}
	a.cancel()
	return true
}

// State returns the state of the current or last attempt.
func (d *Dialer) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Done is closed once the outcome of the current attempt has been delivered.
func (d *Dialer) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return d.current.done
}

func (d *Dialer) run(ctx context.Context, a *attempt) {
	host, port := a.profile.HostName, a.profile.PortNumber
	d.publish(a, fmt.Sprintf("Trying to connect to %s:%d", host, port))
	msg := fmt.Sprintf("Connecting to host %s:%d", host, port)
	if a.secure {
		msg += " (SSL)"
	}
	d.publish(a, msg)

	conn, err := d.connect(ctx, a)
	d.exec(func() { d.complete(a, conn, err) })
}

// publish keeps only the newest message; a slow control loop sees the latest.
func (d *Dialer) publish(a *attempt, msg string) {
	for {
		select {
		case a.progress <- msg:
			d.exec(func() { d.drain(a) })
			return
		default:
		}
		select {
		case <-a.progress:
		default:
		}
	}
}

func (d *Dialer) drain(a *attempt) {
	select {
	case msg := <-a.progress:
		d.presenter.ShowMessage(msg)
	default:
	}
}

func (d *Dialer) connect(ctx context.Context, a *attempt) (net.Conn, error) {
	addr := a.profile.Address()
	var (
		conn net.Conn
		err  error
	)
	if a.secure {
		conn, err = d.dialTLS(ctx, a.profile.HostName, addr)
	} else {
		conn, err = d.dialTCP(ctx, addr)
	}
	if err != nil {
		return nil, err
	}
	if d.handshake != nil {
		if err := d.handshake(ctx, conn); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

func (d *Dialer) dialTCP(ctx context.Context, addr string) (net.Conn, error) {
	if d.dial != nil {
		return d.dial(ctx, "tcp", addr)
	}
	nd := &net.Dialer{Timeout: d.timeout}
	return nd.DialContext(ctx, "tcp", addr)
}

func (d *Dialer) clientTLSConfig(host string) *tls.Config {
	var cfg *tls.Config
	if d.tlsConfig != nil {
		cfg = d.tlsConfig.Clone()
	} else {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if cfg.ServerName == "" {
		cfg.ServerName = host
	}
	return cfg
}

func (d *Dialer) dialTLS(ctx context.Context, host, addr string) (net.Conn, error) {
	cfg := d.clientTLSConfig(host)
	if d.dial == nil {
		td := &tls.Dialer{NetDialer: &net.Dialer{Timeout: d.timeout}, Config: cfg}
		return td.DialContext(ctx, "tcp", addr)
	}
	raw, err := d.dial(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	tc := tls.Client(raw, cfg)
	if err := tc.HandshakeContext(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return tc, nil
}

func (d *Dialer) finish(a *attempt, s State) {
	d.mu.Lock()
	if d.current == a {
		d.state = s
	}
	d.mu.Unlock()
}

// complete runs on the control side. A connection that arrives after Cancel
// was requested is closed here rather than handed out.
func (d *Dialer) complete(a *attempt, conn net.Conn, err error) {
	defer close(a.done)
	d.drain(a)
	userCancelled := a.cancelled.Load()
	interrupted := a.parent.Err() != nil
	a.cancel()
	host, port := a.profile.HostName, a.profile.PortNumber

	switch {
	case userCancelled:
		if conn != nil {
			_ = conn.Close()
			d.logf("dial %s:%d cancelled after connect; connection closed", host, port)
		}
		d.finish(a, StateCancelled)
		d.presenter.ShowMessage("Cancelled")
		d.presenter.ConnectionFailed()
	case err == nil:
		d.finish(a, StateSucceeded)
		d.presenter.SuccessfulConnection(conn)
	case interrupted:
		d.finish(a, StateCancelled)
		d.presenter.ShowMessage("Interrupted")
		d.presenter.ConnectionFailed()
	default:
		kind := Classify(err)
		d.logf("dial %s:%d failed kind=%s: %v", host, port, kind, err)
		d.finish(a, StateFailed)
		if msg := FailureMessage(kind, host, port, err); msg != "" {
			d.presenter.ShowConnectionErrorDialog(msg)
		}
		d.presenter.ClearMessage()
		d.presenter.ConnectionFailed()
	}
}
