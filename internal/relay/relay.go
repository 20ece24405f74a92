// Package relay is the telnet-driven physical relay board client described
// in spec.md §4.3: a lazily-connected, process-wide singleton-shaped handle
// (constructed once and passed in, per the Design Notes in spec.md §9 rather
// than a package-level global) that turns abstract phase assignments into
// channel bitmaps and speaks a line-oriented login+command protocol over a
// plain TCP/telnet connection. Adapted from the teacher's
// cmd/supervisor/internal/manager connection-retry idiom and pkg/keyring's
// lazy-connect pattern.
package relay

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/junctionctl/controller/internal/obslog"
	"github.com/junctionctl/controller/internal/phase"
)

const (
	maxConnectAttempts = 5
	recvTimeout        = 5 * time.Second
	defaultRelayPort   = "23"
)

// Relay is the telnet relay driver. It owns at most one TCP connection at a
// time and serializes all command traffic through connMu; standbyMu
// serializes standby-mode entry against the supervisor's crash-recovery path
// exactly as spec.md §5 requires.
type Relay struct {
	addr     string
	username string
	password string
	log      *obslog.Logger

	connMu sync.Mutex
	conn   net.Conn

	standbyMu sync.Mutex

	cycleMu      sync.RWMutex
	cycle        phase.Cycle
	currentPhase int
}

// New constructs the Relay handle from the configured relayUrl, which may be
// a bare host (the real board's fixed port 23 is assumed) or a host:port
// pair (used by tests and non-standard deployments). Per spec.md §9's
// "singleton relay" design note, the connection itself is opened lazily on
// first use; New never dials.
func New(relayURL, username, password string, cycle phase.Cycle, log *obslog.Logger) *Relay {
	addr := relayURL
	if !strings.Contains(addr, ":") {
		addr = net.JoinHostPort(addr, defaultRelayPort)
	}
	return &Relay{
		addr:     addr,
		username: username,
		password: password,
		cycle:    cycle,
		log:      log,
	}
}

// SetPhaseCycle sets the internal phase pointer. It does not transmit
// anything, matching spec.md §4.3.
func (r *Relay) SetPhaseCycle(i int) {
	r.cycleMu.Lock()
	defer r.cycleMu.Unlock()
	r.currentPhase = i
}

func (r *Relay) phaseAt(i int) phase.Phase {
	r.cycleMu.RLock()
	defer r.cycleMu.RUnlock()
	n := len(r.cycle)
	if n == 0 {
		return nil
	}
	return r.cycle[((i%n)+n)%n]
}

// bitmapFor sets bit i for every lane whose assignment is a green
// (vehicle or pedestrian).
func bitmapFor(p phase.Phase) uint32 {
	var bits uint32
	for i, a := range p {
		if a.IsGreen() {
			bits |= 1 << uint(i)
		}
	}
	return bits
}

// transitionBitmap computes the yellow-transition bitmap from the currently
// asserted phase and the phase that will follow it: every lane that is
// GreenVehicle now and is not GreenVehicle in next goes yellow. Pedestrian
// greens have no yellow interstitial per spec.md §4.3 (they're addressed only
// via the lane's own RedPed/GreenPed cycling).
func transitionBitmap(current, next phase.Phase) uint32 {
	var bits uint32
	for i, a := range current {
		if a != phase.GreenVehicle {
			continue
		}
		if i < len(next) && next[i] == phase.GreenVehicle {
			continue
		}
		bits |= 1 << uint(i)
	}
	return bits
}

// hexCommand renders a channel bitmap as the board's ASCII command frame.
func hexCommand(prefix string, bits uint32) string {
	return fmt.Sprintf("%s %08X\r\n", prefix, bits)
}

// ensureConnected dials and logs in if not already connected, retrying up to
// maxConnectAttempts times. On exhaustion it returns an error; callers must
// not let that stall the scheduler (spec.md §7).
func (r *Relay) ensureConnected(ctx context.Context) error {
	r.connMu.Lock()
	defer r.connMu.Unlock()

	if r.conn != nil {
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= maxConnectAttempts; attempt++ {
		conn, err := net.DialTimeout("tcp", r.addr, recvTimeout)
		if err != nil {
			lastErr = err
			r.log.Warnf("relay: connect attempt %d/%d failed: %v", attempt, maxConnectAttempts, err)
			continue
		}
		if err := r.login(conn); err != nil {
			lastErr = err
			conn.Close()
			r.log.Warnf("relay: login attempt %d/%d failed: %v", attempt, maxConnectAttempts, err)
			continue
		}
		r.conn = conn
		r.log.Infof("relay: connected to %s", r.addr)
		return nil
	}
	return fmt.Errorf("relay: failed to connect after %d attempts: %w", maxConnectAttempts, lastErr)
}

func (r *Relay) login(conn net.Conn) error {
	_ = conn.SetDeadline(time.Now().Add(recvTimeout))
	reader := textproto.NewReader(bufio.NewReader(conn))

	if _, err := reader.ReadLine(); err != nil {
		return fmt.Errorf("relay: read login banner: %w", err)
	}
	if _, err := fmt.Fprintf(conn, "%s\r\n", r.username); err != nil {
		return fmt.Errorf("relay: send username: %w", err)
	}
	if _, err := reader.ReadLine(); err != nil {
		return fmt.Errorf("relay: read password prompt: %w", err)
	}
	if _, err := fmt.Fprintf(conn, "%s\r\n", r.password); err != nil {
		return fmt.Errorf("relay: send password: %w", err)
	}
	return nil
}

// send transmits a pre-rendered command frame, reconnecting if necessary.
// Failures are logged and returned; per spec.md §7 the caller must treat a
// relay error as non-fatal and continue the cycle.
func (r *Relay) send(ctx context.Context, frame string) error {
	if err := r.ensureConnected(ctx); err != nil {
		return err
	}

	r.connMu.Lock()
	defer r.connMu.Unlock()

	_ = r.conn.SetWriteDeadline(time.Now().Add(recvTimeout))
	if _, err := fmt.Fprint(r.conn, frame); err != nil {
		r.conn.Close()
		r.conn = nil
		return fmt.Errorf("relay: send: %w", err)
	}
	return nil
}

// ExecutePhase translates the currently set phase into a channel bitmap and
// transmits it.
func (r *Relay) ExecutePhase(ctx context.Context) error {
	p := r.phaseAt(r.currentIndex())
	bits := bitmapFor(p)
	if err := r.send(ctx, hexCommand("GRN", bits)); err != nil {
		r.log.Errorf("relay: executePhase: %v", err)
		return err
	}
	return nil
}

func (r *Relay) currentIndex() int {
	r.cycleMu.RLock()
	defer r.cycleMu.RUnlock()
	return r.currentPhase
}

// ExecuteTransitionPhase derives and transmits the yellow-transition bitmap
// for the (current, next) phase pair, called at T-5s of the current phase
// per spec.md §4.4.
func (r *Relay) ExecuteTransitionPhase(ctx context.Context) error {
	idx := r.currentIndex()
	current := r.phaseAt(idx)
	next := r.phaseAt(idx + 1)
	bits := transitionBitmap(current, next)
	if err := r.send(ctx, hexCommand("YEL", bits)); err != nil {
		r.log.Errorf("relay: executeTransitionPhase: %v", err)
		return err
	}
	return nil
}

// TurnOffAllRelay de-energizes every channel. Invoked on every process exit
// path per spec.md §4.3's invariant.
func (r *Relay) TurnOffAllRelay(ctx context.Context) error {
	if err := r.send(ctx, hexCommand("OFF", 0)); err != nil {
		r.log.Errorf("relay: turnOffAllRelay: %v", err)
		return err
	}
	return nil
}

// yellowBitmapAll returns every lane that is ever GreenVehicle or
// GreenPedestrian anywhere in the cycle, the set flashed during standby.
func (r *Relay) yellowBitmapAll() uint32 {
	r.cycleMu.RLock()
	defer r.cycleMu.RUnlock()
	var bits uint32
	for _, p := range r.cycle {
		bits |= bitmapFor(p)
	}
	return bits
}

// StandbyMode flashes every lane's yellow channel for the given duration,
// then returns. Entry is serialized by standbyMu so a second SIGCHLD arriving
// mid-standby cannot re-enter concurrently (spec.md §4.6, §5).
func (r *Relay) StandbyMode(ctx context.Context, d time.Duration) error {
	r.standbyMu.Lock()
	defer r.standbyMu.Unlock()

	bits := r.yellowBitmapAll()
	deadline := time.Now().Add(d)
	on := true
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			frame := hexCommand("YEL", 0)
			if on {
				frame = hexCommand("YEL", bits)
			}
			if err := r.send(ctx, frame); err != nil {
				r.log.Warnf("relay: standbyMode flash: %v", err)
			}
			on = !on
		}
	}
	return nil
}

// Close shuts down the connection without sending further commands.
func (r *Relay) Close() error {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	return err
}
