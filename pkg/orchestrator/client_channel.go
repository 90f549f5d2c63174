package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/coder/websocket"
)


// responseCompleteSendTimeout bounds how long a must-not-drop frame
// (response_complete, error) may block against a stalled client before
// the channel gives up and reports ClientGone.
const responseCompleteSendTimeout = 2 * time.Second


// ClientChannel is the bidirectional frame transport: binary audio and
// JSON control in, the JSON frame shapes out. Writes are serialized
// through a single bounded queue and writer goroutine so callers never
// block on a slow client, except briefly for final transcripts and for
// the frames that must never be dropped.
type ClientChannel struct {
	conn   *websocket.Conn
	logger Logger

	outQ chan outFrame
	done chan struct{}
	fail chan error
}


func NewClientChannel(conn *websocket.Conn, logger Logger, queueSize int) *ClientChannel {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &ClientChannel{
		conn:   conn,
		logger: logger,
		outQ:   make(chan outFrame, queueSize),
		done:   make(chan struct{}),
		fail:   make(chan error, 1),
	}
}


// Run drives the outbound writer until ctx is cancelled or a write
// fails. It blocks; callers run it in its own goroutine.
func (c *ClientChannel) Run(ctx context.Context) error {
	defer close(c.done)
	for {
		select {
		case f := <-c.outQ:
			if err := c.write(ctx, f); err != nil {
				return fmt.Errorf("%w: %v", ErrClientGone, err)
			}
		case err := <-c.fail:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *ClientChannel) write(ctx context.Context, f outFrame) error {
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return c.conn.Write(ctx, websocket.MessageText, b)
}


// SendDroppable enqueues a frame that the backpressure policy is
// allowed to drop under overflow: interim transcripts and audio. It
// never blocks.
func (c *ClientChannel) SendDroppable(f outFrame) {
	select {
	case c.outQ <- f:
	default:
		c.logger.Warn("dropping outbound frame under backpressure", "type", f.Type)
	}
}


// SendFinalTranscript enqueues a transcript(isFinal=true) frame. These
// are dropped only as a last resort under sustained overflow, after
// interims and audio have already been dropped; a non-blocking attempt
// followed by a short blocking retry captures that priority without a
// second queue.
func (c *ClientChannel) SendFinalTranscript(f outFrame) {
	select {
	case c.outQ <- f:
		return
	default:
	}
	select {
	case c.outQ <- f:
	case <-time.After(100 * time.Millisecond):
		c.logger.Warn("dropping final transcript under sustained backpressure")
	}
}


// SendMustDeliver enqueues response_complete or error, which must never
// be dropped. A stalled client blocks this call up to
// responseCompleteSendTimeout, after which the channel reports
// ClientGone and tears the session down.
func (c *ClientChannel) SendMustDeliver(f outFrame) {
	select {
	case c.outQ <- f:
	case <-time.After(responseCompleteSendTimeout):
		select {
		case c.fail <- fmt.Errorf("%w: outbound queue stalled", ErrClientGone):
		default:
		}
	}
}


// ReadLoop consumes inbound frames until the connection closes or ctx is
// cancelled. onAudio receives raw PCM bytes from binary frames; onControl
// receives the parsed type of JSON text frames. Malformed JSON is logged
// and dropped without calling onControl (ProtocolError policy).
func (c *ClientChannel) ReadLoop(ctx context.Context, onAudio func([]byte), onControl func(kind string)) error {
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrClientGone, err)
		}
		switch typ {
		case websocket.MessageBinary:
			onAudio(data)
		case websocket.MessageText:
			var msg inControl
			if err := json.Unmarshal(data, &msg); err != nil {
				c.logger.Warn("dropping malformed control frame", "error", err)
				continue
			}
			onControl(msg.Type)
		}
	}
}

func (c *ClientChannel) Close() {
	_ = c.conn.Close(websocket.StatusNormalClosure, "")
}
