package link

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/teslashibe/go-playbot/pkg/protocol"
)

// fakePort delivers queued chunks to Read and records writes.
type fakePort struct {
	in     chan []byte
	mu     sync.Mutex
	out    bytes.Buffer
	closed bool
	once   sync.Once
	quit   chan struct{}
}

func newFakePort() *fakePort {
	return &fakePort{in: make(chan []byte, 16), quit: make(chan struct{})}
}

func (p *fakePort) Read(b []byte) (int, error) {
	select {
	case chunk := <-p.in:
		return copy(b, chunk), nil
	case <-p.quit:
		return 0, io.EOF
	}
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.Write(b)
}

func (p *fakePort) Close() error {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		close(p.quit)
	})
	return nil
}

func (p *fakePort) written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.String()
}

func (p *fakePort) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// recordingOpener hands out a fresh fakePort per open.
type recordingOpener struct {
	mu    sync.Mutex
	bauds []int
	ports []*fakePort
	fail  bool
}

func (o *recordingOpener) open(name string, baud int) (io.ReadWriteCloser, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail {
		return nil, errors.New("no device")
	}
	p := newFakePort()
	o.bauds = append(o.bauds, baud)
	o.ports = append(o.ports, p)
	return p, nil
}

func (o *recordingOpener) last() *fakePort {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ports[len(o.ports)-1]
}

type staticBaud struct{ rate int }

func (s *staticBaud) Baud() (int, error) { return s.rate, nil }

func waitPending(t *testing.T, l *Link, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		l.mu.Lock()
		ready := len(l.pending) >= want
		l.mu.Unlock()
		if ready {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d pending bytes", want)
}

func pollString(l *Link) string {
	buf := make([]byte, 256)
	return string(buf[:l.Poll(buf)])
}

func openFake(t *testing.T, mock *clock.Mock) (*Link, *fakePort) {
	t.Helper()
	op := &recordingOpener{}
	l := New(Options{Name: "fake", Baud: 115200, Opener: op.open, Clock: mock})
	if err := l.Open(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })
	return l, op.last()
}

func TestLink_PollTruncatesLongLine(t *testing.T) {
	l, port := openFake(t, clock.NewMock())

	payload := append(bytes.Repeat([]byte("v"), 100), "\nx\n"...)
	port.in <- payload
	waitPending(t, l, len(payload))

	if got := pollString(l); len(got) != DefaultMaxRead {
		t.Fatalf("first poll = %d bytes, want %d", len(got), DefaultMaxRead)
	}
	if got := pollString(l); got != "x\n" {
		t.Errorf("second poll = %q, want %q", got, "x\n")
	}
	if got := pollString(l); got != "" {
		t.Errorf("third poll = %q, want nothing", got)
	}
}

func TestLink_PollJoinsSplitCommand(t *testing.T) {
	l, port := openFake(t, clock.NewMock())

	port.in <- []byte("a/clips/")
	waitPending(t, l, 8)
	if got := pollString(l); got != "" {
		t.Fatalf("partial line polled as %q", got)
	}

	port.in <- []byte("wave.txt\n")
	waitPending(t, l, 17)
	if got := pollString(l); got != "a/clips/wave.txt\n" {
		t.Errorf("poll = %q, want the whole command", got)
	}
}

func TestLink_PollOneCommandPerCall(t *testing.T) {
	l, port := openFake(t, clock.NewMock())

	port.in <- []byte("x\nv\n")
	waitPending(t, l, 4)

	for _, want := range []string{"x\n", "v\n", ""} {
		if got := pollString(l); got != want {
			t.Errorf("poll = %q, want %q", got, want)
		}
	}
}

func TestLink_PollReleasesIdleFragment(t *testing.T) {
	mock := clock.NewMock()
	l, port := openFake(t, mock)

	port.in <- []byte("v")
	waitPending(t, l, 1)
	if got := pollString(l); got != "" {
		t.Fatalf("fragment released early: %q", got)
	}
	mock.Add(DefaultFrameIdle)
	if got := pollString(l); got != "v" {
		t.Errorf("poll = %q, want %q", got, "v")
	}
}

func TestLink_Emit(t *testing.T) {
	op := &recordingOpener{}
	l := New(Options{Name: "fake", Baud: 115200, Opener: op.open})
	if err := l.Open(); err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	l.Emit(protocol.NewVerifyAck())
	l.Emit(protocol.NewRotationDone())

	if got := op.last().written(); got != "msg s/\nmsg r/1\n" {
		t.Errorf("written = %q", got)
	}
}

func TestLink_EmitWithoutPortDoesNotPanic(t *testing.T) {
	l := New(Options{Name: "fake", Opener: (&recordingOpener{fail: true}).open})
	if err := l.Open(); err == nil {
		t.Fatal("expected open error")
	}
	l.Emit(protocol.NewEdgeMessage())
	if _, err := l.Write([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Write err = %v, want ErrClosed", err)
	}
}

func TestLink_PollBaudReopens(t *testing.T) {
	tests := []struct {
		name      string
		requested int
		wantOpens []int
	}{
		{"no request", 0, []int{115200}},
		{"same rate", 115200, []int{115200}},
		{"new rate", 9600, []int{115200, 9600}},
		{"quirk rate substituted", 57600, []int{115200, 58824}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := &recordingOpener{}
			mock := clock.NewMock()
			l := New(Options{
				Name:         "fake",
				Baud:         115200,
				Opener:       op.open,
				BaudSource:   &staticBaud{rate: tt.requested},
				BaudInterval: 100 * time.Millisecond,
				Clock:        mock,
			})
			if err := l.Open(); err != nil {
				t.Fatal(err)
			}
			defer l.Close()

			first := op.last()
			l.PollBaud()
			l.PollBaud()

			if len(op.bauds) != len(tt.wantOpens) {
				t.Fatalf("opens = %v, want %v", op.bauds, tt.wantOpens)
			}
			for i := range tt.wantOpens {
				if op.bauds[i] != tt.wantOpens[i] {
					t.Errorf("open %d baud = %d, want %d", i, op.bauds[i], tt.wantOpens[i])
				}
			}
			if len(tt.wantOpens) > 1 && !first.isClosed() {
				t.Error("previous port was not closed")
			}
		})
	}
}

func TestLink_PollBaudRateLimited(t *testing.T) {
	op := &recordingOpener{}
	src := &staticBaud{}
	mock := clock.NewMock()
	l := New(Options{
		Name:         "fake",
		Baud:         115200,
		Opener:       op.open,
		BaudSource:   src,
		BaudInterval: 100 * time.Millisecond,
		Clock:        mock,
	})
	if err := l.Open(); err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	l.PollBaud()
	src.rate = 9600
	mock.Add(50 * time.Millisecond)
	l.PollBaud()
	if len(op.bauds) != 1 {
		t.Fatalf("reopened before interval elapsed: %v", op.bauds)
	}
	mock.Add(50 * time.Millisecond)
	l.PollBaud()
	if len(op.bauds) != 2 || l.Baud() != 9600 {
		t.Errorf("opens = %v, baud = %d", op.bauds, l.Baud())
	}
}

func TestFileBaud(t *testing.T) {
	path := filepath.Join(t.TempDir(), "baud")

	if got, err := FileBaud(path).Baud(); err != nil || got != 0 {
		t.Errorf("missing file = %d, %v; want 0, nil", got, err)
	}
	if err := os.WriteFile(path, []byte("57600\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got, err := FileBaud(path).Baud(); err != nil || got != 57600 {
		t.Errorf("Baud() = %d, %v; want 57600", got, err)
	}
}

func TestEffectiveBaud(t *testing.T) {
	if EffectiveBaud(57600) != 58824 {
		t.Error("57600 should map to 58824")
	}
	if EffectiveBaud(115200) != 115200 {
		t.Error("115200 should pass through")
	}
}
