// Package supervisor manages the lifecycle of the item server: binding the
// listener, serving, stopping and broadcasting status changes to observers.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/localbackend/internal/config"
	"github.com/vyrodovalexey/localbackend/internal/model"
	"github.com/vyrodovalexey/localbackend/internal/server"
	"github.com/vyrodovalexey/localbackend/internal/store"
)

// subscriberBuffer is the number of status events held for a slow subscriber.
const subscriberBuffer = 8

// fallbackHost is advertised when no usable network interface is found.
const fallbackHost = "127.0.0.1"

// ErrAlreadyRunning is logged when Start is called on a running supervisor.
var ErrAlreadyRunning = errors.New("server already running")

// Supervisor starts and stops the HTTP server and reports its status.
type Supervisor struct {
	cfg    *config.Config
	logger *zap.Logger
	store  store.Store

	// lifecycle serializes Start and Stop.
	lifecycle sync.Mutex

	mu        sync.RWMutex
	srv       *server.Server
	url       string
	serveDone chan struct{}

	subMu sync.Mutex
	subs  map[chan model.Status]struct{}

	done chan error
}

// New creates a stopped Supervisor serving itemStore.
func New(cfg *config.Config, logger *zap.Logger, itemStore store.Store) *Supervisor {
	return &Supervisor{
		cfg:    cfg,
		logger: logger,
		store:  itemStore,
		subs:   make(map[chan model.Status]struct{}),
		done:   make(chan error, 1),
	}
}

// Start binds the configured host on port (0 picks a free port) and serves
// in the background. It returns the URL clients should use. Starting a
// running supervisor returns the current URL.
func (s *Supervisor) Start(ctx context.Context, port int) (string, error) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.RLock()
	running, url := s.srv != nil, s.url
	s.mu.RUnlock()

	if running {
		s.logger.Debug("start ignored", zap.Error(ErrAlreadyRunning), zap.String("url", url))
		return url, nil
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(s.cfg.BindHost, strconv.Itoa(port)))
	if err != nil {
		return "", fmt.Errorf("binding listener: %w", err)
	}

	tcpAddr, ok := ln.Addr().(*net.TCPAddr)
	if !ok {
		_ = ln.Close()
		return "", fmt.Errorf("unexpected listener address %s", ln.Addr())
	}
	url = "http://" + net.JoinHostPort(advertisedHost(s.cfg.BindHost, tcpAddr.IP), strconv.Itoa(tcpAddr.Port))

	srv := server.New(s.cfg, s.logger, s.store, s)
	serveDone := make(chan struct{})

	s.mu.Lock()
	s.srv, s.url, s.serveDone = srv, url, serveDone
	s.mu.Unlock()

	go func() {
		defer close(serveDone)
		if err := srv.Serve(ln); err != nil {
			s.fail(srv, err)
		}
	}()

	s.logger.Info("server started", zap.String("url", url))
	s.broadcast(model.RunningStatus(url))

	return url, nil
}

// Stop gracefully shuts the server down. Stopping a stopped supervisor is a no-op.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	srv, serveDone := s.srv, s.serveDone
	s.srv, s.url, s.serveDone = nil, "", nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	shutdownErr := srv.Shutdown(ctx)

	select {
	case <-serveDone:
	case <-ctx.Done():
		if shutdownErr == nil {
			shutdownErr = ctx.Err()
		}
	}

	s.logger.Info("server stopped")
	s.broadcast(model.StoppedStatus())

	if shutdownErr != nil {
		return fmt.Errorf("stopping server: %w", shutdownErr)
	}
	return nil
}

// Status returns the current listener status.
func (s *Supervisor) Status() model.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.srv == nil {
		return model.StoppedStatus()
	}
	return model.RunningStatus(s.url)
}

// Subscribe registers for status changes. The returned function cancels the
// subscription and closes the channel; it is safe to call more than once.
// A subscriber that falls behind loses its oldest pending events.
func (s *Supervisor) Subscribe() (<-chan model.Status, func()) {
	ch := make(chan model.Status, subscriberBuffer)

	s.subMu.Lock()
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			if _, ok := s.subs[ch]; ok {
				delete(s.subs, ch)
				close(ch)
			}
		})
	}
}

// Done reports a serve failure that stopped the server unexpectedly.
func (s *Supervisor) Done() <-chan error {
	return s.done
}

// Close ends every subscription. The supervisor should be stopped first.
func (s *Supervisor) Close() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for ch := range s.subs {
		delete(s.subs, ch)
		close(ch)
	}
}

// fail records an unexpected serve error for srv.
func (s *Supervisor) fail(srv *server.Server, err error) {
	s.logger.Error("server failed", zap.Error(err))

	s.mu.Lock()
	current := s.srv == srv
	if current {
		s.srv, s.url, s.serveDone = nil, "", nil
	}
	s.mu.Unlock()

	if !current {
		return
	}

	s.broadcast(model.StoppedStatus())

	select {
	case s.done <- err:
	default:
	}
}

// broadcast delivers status to every subscriber without blocking.
func (s *Supervisor) broadcast(status model.Status) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for ch := range s.subs {
		select {
		case ch <- status:
			continue
		default:
		}

		// Full: drop the oldest event so the newest is kept.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- status:
		default:
		}
	}
}

// advertisedHost returns the host for the server URL. A specific bind
// address is advertised as is. A host name advertises the address the
// listener actually bound, so "localhost" stays on loopback. Only a wildcard
// bind advertises the first non-loopback IPv4 interface address.
func advertisedHost(bindHost string, bound net.IP) string {
	if ip := net.ParseIP(bindHost); ip != nil {
		if !ip.IsUnspecified() {
			return bindHost
		}
		return LocalIPv4()
	}
	if bound != nil && !bound.IsUnspecified() {
		return bound.String()
	}
	return LocalIPv4()
}

// LocalIPv4 returns the first IPv4 address of an up, non-loopback interface,
// or 127.0.0.1 when there is none.
func LocalIPv4() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return fallbackHost
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			if ip4 := ipNet.IP.To4(); ip4 != nil && !ip4.IsLoopback() {
				return ip4.String()
			}
		}
	}

	return fallbackHost
}
