package stomppush

import (
	"io"
	"sync"

	"github.com/gorilla/websocket"
)

// wsStream exposes a websocket connection as the byte stream the STOMP
// client expects. Each write becomes one text message; reads concatenate
// incoming messages. The first I/O error is reported through onErr.
type wsStream struct {
	conn   *websocket.Conn
	reader io.Reader

	wmu   sync.Mutex
	onErr func(error)
}

func newWSStream(conn *websocket.Conn, onErr func(error)) *wsStream {
	return &wsStream{conn: conn, onErr: onErr}
}

func (s *wsStream) Read(p []byte) (int, error) {
	for {
		if s.reader == nil {
			_, r, err := s.conn.NextReader()
			if err != nil {
				s.onErr(err)
				return 0, err
			}
			s.reader = r
		}
		n, err := s.reader.Read(p)
		if err == io.EOF {
			s.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		if err != nil {
			s.onErr(err)
		}
		return n, err
	}
}

func (s *wsStream) Write(p []byte) (int, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		s.onErr(err)
		return 0, err
	}
	return len(p), nil
}

func (s *wsStream) Close() error {
	return s.conn.Close()
}
