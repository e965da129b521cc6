package broadcast

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 10 * time.Second
	maxFrame   = 8 << 10
)

// queue is the bounded outbox shared by every Conn implementation. Closing
// it never closes send, so a late Enqueue cannot panic.
type queue struct {
	id   string
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newQueue() *queue {
	return &queue{
		id:   uuid.NewString(),
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

func (q *queue) ID() string { return q.id }

func (q *queue) Enqueue(frame []byte) bool {
	select {
	case <-q.done:
		return false
	default:
	}
	select {
	case q.send <- frame:
		return true
	case <-q.done:
		return false
	default:
		return false
	}
}

func (q *queue) Close() {
	q.once.Do(func() { close(q.done) })
}

// Done is closed once the link has been dropped.
func (q *queue) Done() <-chan struct{} { return q.done }

// link is one mesh websocket.
type link struct {
	*queue
	conn *websocket.Conn
	log  *zap.SugaredLogger
}

func newLink(conn *websocket.Conn, log *zap.SugaredLogger) *link {
	q := newQueue()
	return &link{queue: q, conn: conn, log: log.With("conn", q.id)}
}

// --------------------
// Link read/write pumps
// --------------------

// readPump hands every text frame to handle until the socket fails.
func (l *link) readPump(handle func(msg []byte)) {
	l.conn.SetReadLimit(maxFrame)
	for {
		_, message, err := l.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				l.log.Debugf("[Link] disconnected normally")
			} else {
				l.log.Debugf("[Link] read error: %v", err)
			}
			return
		}

		func(msg []byte) {
			defer func() {
				if r := recover(); r != nil {
					l.log.Errorf("[Link] recovered from panic: %v", r)
				}
			}()
			handle(msg)
		}(message)
	}
}

func (l *link) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		l.conn.Close()
	}()

	for {
		select {
		case <-l.done:
			l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			l.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-l.send:
			l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				l.log.Debugf("[Link] write error: %v", err)
				l.Close()
				return
			}
		case <-ticker.C:
			l.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := l.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				l.Close()
				return
			}
		}
	}
}
