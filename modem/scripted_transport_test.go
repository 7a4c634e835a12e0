package modem

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"
)

// ScriptedTransport plays the modem side of the link. Every command written
// to it is answered from a script, and reads block until there is something
// to say, like a real serial port does.
type ScriptedTransport struct {
	mu        sync.Mutex
	script    map[string][]string
	responder func(cmd string) (string, bool)
	writes    []string
	readChan  chan []byte
	pending   []byte
	closed    bool
}

func NewScriptedTransport() *ScriptedTransport {
	return &ScriptedTransport{
		script:   make(map[string][]string),
		readChan: make(chan []byte, 64),
	}
}

// On scripts the replies to a command, given without its trailing CR.
// Successive writes of the command consume successive replies; the last
// reply repeats.
func (t *ScriptedTransport) On(cmd string, replies ...string) *ScriptedTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.script[cmd] = replies
	return t
}

// OK scripts commands that simply succeed.
func (t *ScriptedTransport) OK(cmds ...string) *ScriptedTransport {
	for _, cmd := range cmds {
		t.On(cmd, "\r\nOK\r\n")
	}
	return t
}

// Respond answers commands the script does not cover.
func (t *ScriptedTransport) Respond(fn func(cmd string) (string, bool)) *ScriptedTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.responder = fn
	return t
}

func (t *ScriptedTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, io.ErrClosedPipe
	}

	cmd := strings.TrimSuffix(string(p), "\r")
	t.writes = append(t.writes, cmd)

	if replies, ok := t.script[cmd]; ok && len(replies) > 0 {
		reply := replies[0]
		if len(replies) > 1 {
			t.script[cmd] = replies[1:]
		}
		t.readChan <- []byte(reply)
	} else if t.responder != nil {
		if reply, ok := t.responder(cmd); ok {
			t.readChan <- []byte(reply)
		}
	}
	return len(p), nil
}

func (t *ScriptedTransport) Read(p []byte) (int, error) {
	if len(t.pending) == 0 {
		data, ok := <-t.readChan
		if !ok {
			return 0, io.EOF
		}
		t.pending = data
	}
	n := copy(p, t.pending)
	t.pending = t.pending[n:]
	return n, nil
}

func (t *ScriptedTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.readChan)
	return nil
}

// SendData queues unsolicited output from the modem.
func (t *ScriptedTransport) SendData(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.readChan <- []byte(data)
	}
}

// Writes returns everything written so far, without trailing CRs.
func (t *ScriptedTransport) Writes() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.writes...)
}

// Count returns how often a command was written.
func (t *ScriptedTransport) Count(cmd string) int {
	n := 0
	for _, w := range t.Writes() {
		if w == cmd {
			n++
		}
	}
	return n
}

// WaitFor blocks until cmd has been written or the timeout passes.
func (t *ScriptedTransport) WaitFor(cmd string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if t.Count(cmd) > 0 {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}

// ScriptedDialer hands out a fixed transport.
type ScriptedDialer struct {
	Transport Transport
}

func (d ScriptedDialer) Dial(ctx context.Context) (Transport, error) {
	return d.Transport, ctx.Err()
}
