package supervisor

import (
	"bufio"
	"context"
	"net"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junctionctl/controller/internal/config"
	"github.com/junctionctl/controller/internal/obslog"
	"github.com/junctionctl/controller/internal/phase"
	"github.com/junctionctl/controller/internal/relay"
)

func TestKillAllTerminatesChildren(t *testing.T) {
	s := &Supervisor{
		log: obslog.New("supervisor-test"),
		cfg: &config.Resolved{Config: &config.Config{StandbyDurationMs: 200}},
	}

	c1 := &child{index: 0, cmd: exec.Command("sleep", "30"), done: make(chan struct{})}
	require.NoError(t, c1.cmd.Start())
	c2 := &child{index: 1, cmd: exec.Command("sleep", "30"), done: make(chan struct{})}
	require.NoError(t, c2.cmd.Start())
	s.children = []*child{c1, c2}
	s.stopping.Store(true)
	go s.watch(c1)
	go s.watch(c2)

	s.killAll()

	assert.NotNil(t, c1.cmd.ProcessState)
	assert.NotNil(t, c2.cmd.ProcessState)
}

func TestWatchReportsCrashWhenNotStopping(t *testing.T) {
	s := &Supervisor{log: obslog.New("supervisor-test"), crashed: make(chan int, 1)}

	c := &child{index: 3, cmd: exec.Command("sh", "-c", "exit 1"), done: make(chan struct{})}
	require.NoError(t, c.cmd.Start())

	s.watch(c)

	select {
	case idx := <-s.crashed:
		assert.Equal(t, 3, idx)
	case <-time.After(2 * time.Second):
		t.Fatal("expected crash report")
	}
}

func TestWatchSuppressesCrashWhileStopping(t *testing.T) {
	s := &Supervisor{log: obslog.New("supervisor-test"), crashed: make(chan int, 1)}
	s.stopping.Store(true)

	c := &child{index: 4, cmd: exec.Command("sh", "-c", "exit 1"), done: make(chan struct{})}
	require.NoError(t, c.cmd.Start())

	s.watch(c)

	select {
	case idx := <-s.crashed:
		t.Fatalf("unexpected crash report for lane %d during deliberate shutdown", idx)
	case <-time.After(100 * time.Millisecond):
	}
}

// fakeRelayListener performs the minimal telnet login handshake and records
// every command line it receives.
type fakeRelayListener struct {
	ln       net.Listener
	received chan string
}

func startFakeRelayListener(t *testing.T) *fakeRelayListener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	f := &fakeRelayListener{ln: ln, received: make(chan string, 16)}
	go f.serve()
	return f
}

func (f *fakeRelayListener) serve() {
	conn, err := f.ln.Accept()
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
			f.received <- strings.TrimSpace(line)
		}
		if err != nil {
			return
		}
	}
}

func (f *fakeRelayListener) addr() string { return f.ln.Addr().String() }
func (f *fakeRelayListener) close()       { f.ln.Close() }

func TestShutdownCrashEntersStandbyThenAllOff(t *testing.T) {
	srv := startFakeRelayListener(t)
	defer srv.close()

	cycle := phase.Cycle{{phase.GreenVehicle}}
	rel := relay.New(srv.addr(), "admin", "secret", cycle, obslog.New("relay-test"))

	s := &Supervisor{
		log:   obslog.New("supervisor-test"),
		relay: rel,
		cfg:   &config.Resolved{Config: &config.Config{StandbyDurationMs: 50}},
	}

	err := s.shutdownCrash(context.Background(), 0)
	require.NoError(t, err)

	select {
	case line := <-srv.received:
		assert.Equal(t, "OFF 00000000", line)
	case <-time.After(3 * time.Second):
		t.Fatal("expected an all-off command after standby")
	}
	assert.True(t, s.stopping.Load())
}
