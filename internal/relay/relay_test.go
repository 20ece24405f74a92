package relay

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junctionctl/controller/internal/obslog"
	"github.com/junctionctl/controller/internal/phase"
)

func TestBitmapForMarksGreenLanesOnly(t *testing.T) {
	p := phase.Phase{phase.GreenVehicle, phase.RedVehicle, phase.GreenPedestrian, phase.RedPedestrian}
	assert.Equal(t, uint32(0b0101), bitmapFor(p))
}

// TestTransitionBitmapMatchesS6 exercises spec.md §8 scenario S6: at T-5s of
// phase 0, channel 0 (green now, red next) goes yellow and channel 1 (red
// now) stays off.
func TestTransitionBitmapMatchesS6(t *testing.T) {
	phase0 := phase.Phase{phase.GreenVehicle, phase.RedVehicle}
	phase1 := phase.Phase{phase.RedVehicle, phase.GreenVehicle}

	assert.Equal(t, uint32(0b01), transitionBitmap(phase0, phase1))
}

func TestTransitionBitmapExcludesLaneStayingGreen(t *testing.T) {
	current := phase.Phase{phase.GreenVehicle, phase.GreenVehicle}
	next := phase.Phase{phase.GreenVehicle, phase.RedVehicle}

	assert.Equal(t, uint32(0b10), transitionBitmap(current, next))
}

func TestHexCommandFormat(t *testing.T) {
	assert.Equal(t, "GRN 00000005\r\n", hexCommand("GRN", 5))
	assert.Equal(t, "OFF 00000000\r\n", hexCommand("OFF", 0))
}

// fakeRelayServer accepts one connection, performs a minimal login handshake,
// and records every subsequent line it receives.
type fakeRelayServer struct {
	ln       net.Listener
	received chan string
}

func startFakeRelayServer(t *testing.T) *fakeRelayServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &fakeRelayServer{ln: ln, received: make(chan string, 16)}
	go s.serve(t)
	return s
}

func (s *fakeRelayServer) serve(t *testing.T) {
	conn, err := s.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	conn.Write([]byte("login:\r\n"))
	r := bufio.NewReader(conn)
	if _, err := r.ReadString('\n'); err != nil {
		return
	}
	conn.Write([]byte("password:\r\n"))
	if _, err := r.ReadString('\n'); err != nil {
		return
	}

	for {
		line, err := r.ReadString('\n')
		if line != "" {
			s.received <- strings.TrimSpace(line)
		}
		if err != nil {
			return
		}
	}
}

func (s *fakeRelayServer) addr() string {
	return s.ln.Addr().String()
}

func (s *fakeRelayServer) close() { s.ln.Close() }

func TestExecutePhaseSendsBitmapOverTelnet(t *testing.T) {
	srv := startFakeRelayServer(t)
	defer srv.close()

	cycle := phase.Cycle{
		{phase.GreenVehicle, phase.RedVehicle},
		{phase.RedVehicle, phase.GreenVehicle},
	}
	r := New(srv.addr(), "admin", "secret", cycle, obslog.New("relay-test"))
	r.SetPhaseCycle(0)

	require.NoError(t, r.ExecutePhase(context.Background()))

	select {
	case line := <-srv.received:
		assert.Equal(t, "GRN 00000001", line)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for relay command")
	}
}

func TestTurnOffAllRelaySendsZeroBitmap(t *testing.T) {
	srv := startFakeRelayServer(t)
	defer srv.close()

	r := New(srv.addr(), "admin", "secret", phase.Cycle{{phase.GreenVehicle}}, obslog.New("relay-test"))

	require.NoError(t, r.TurnOffAllRelay(context.Background()))

	select {
	case line := <-srv.received:
		assert.Equal(t, "OFF 00000000", line)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for relay command")
	}
}

func TestStandbyModeHonorsContextCancellation(t *testing.T) {
	srv := startFakeRelayServer(t)
	defer srv.close()

	r := New(srv.addr(), "admin", "secret", phase.Cycle{{phase.GreenVehicle}}, obslog.New("relay-test"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := r.StandbyMode(ctx, 5*time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
