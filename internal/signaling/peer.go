package signaling

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const wsWriteWait = 1 * time.Second

// peer wraps one client WebSocket. All writes go through writeMu so
// broadcasts, relays and direct replies from different goroutines never
// interleave on the wire.
type peer struct {
	id   string
	conn *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newPeer(conn *websocket.Conn) *peer {
	return &peer{
		id:   uuid.NewString(),
		conn: conn,
	}
}

func (p *peer) ID() string { return p.id }

// Send writes one text frame with a bounded write deadline.
func (p *peer) Send(data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

func (p *peer) ping() error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

func (p *peer) closeWith(code int, reason string) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
}

func (p *peer) Close() {
	p.closeOnce.Do(func() {
		_ = p.conn.Close()
	})
}
