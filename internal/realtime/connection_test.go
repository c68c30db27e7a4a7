package realtime

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeWS implements the wsConn seam and records written frames.
type fakeWS struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (f *fakeWS) ReadMessage() (int, []byte, error) { return 0, nil, errors.New("not used") }

func (f *fakeWS) WriteMessage(mt int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	f.frames = append(f.frames, cp)
	return nil
}

func (f *fakeWS) SetWriteDeadline(t time.Time) error { return nil }

func (f *fakeWS) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeWS) written() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.frames))
	copy(out, f.frames)
	return out
}

func TestWSConnection_SendPreservesOrdering(t *testing.T) {
	ws := &fakeWS{}
	conn := newWSConnection(ws)
	conn.StartWriteLoop()

	for i := 0; i < 10; i++ {
		if err := conn.Send(Envelope{Type: MsgChatMessage, Payload: i}); err != nil {
			t.Fatalf("Send(%d) error = %v", i, err)
		}
	}

	// Let the write loop drain the queue.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(ws.written()) == 10 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	frames := ws.written()
	if len(frames) != 10 {
		t.Fatalf("wrote %d frames, want 10", len(frames))
	}
	for i, frame := range frames {
		var env struct {
			Payload int `json:"payload"`
		}
		if err := json.Unmarshal(frame, &env); err != nil {
			t.Fatalf("frame %d is not valid JSON: %v", i, err)
		}
		if env.Payload != i {
			t.Fatalf("frame %d carries payload %d, ordering broken", i, env.Payload)
		}
	}

	conn.Close()
}

func TestWSConnection_SendAfterCloseFails(t *testing.T) {
	conn := newWSConnection(&fakeWS{})
	conn.Close()

	err := conn.Send(Envelope{Type: MsgOffer})
	if !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("Send() after close error = %v, want ErrConnectionClosed", err)
	}

	// Closing twice is safe.
	conn.Close()
}

func TestWSConnection_BackpressureDropsInsteadOfBlocking(t *testing.T) {
	// No write loop running: the buffer fills and Send must fail fast.
	conn := newWSConnection(&fakeWS{})

	var dropped bool
	for i := 0; i < sendBufferSize+1; i++ {
		if err := conn.Send(Envelope{Type: MsgFocusStatus, Payload: i}); err != nil {
			if !errors.Is(err, ErrBackpressure) {
				t.Fatalf("Send() error = %v, want ErrBackpressure", err)
			}
			dropped = true
			break
		}
	}
	if !dropped {
		t.Fatal("send buffer never reported backpressure")
	}
}
