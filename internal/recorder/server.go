package recorder

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// compressThreshold is the snapshot size above which the stored copy is
// kept brotli compressed.
const compressThreshold = 32 * 1024

// clientWriteTimeout bounds a single websocket write. A preview client
// that cannot take a frame within it is dropped rather than allowed to
// stall the broadcast.
const clientWriteTimeout = 5 * time.Second

// Message type values pushed to preview clients.
const (
	MessageHello    = "hello"
	MessageStep     = "step"
	MessageSnapshot = "snapshot"
)

// Message is the wire format of the preview socket. Type is always set;
// Session and Lines accompany hello, Index, Line and Replaced accompany
// step, Title, URL and Size accompany snapshot.
type Message struct {
	Type     string   `json:"type"`
	Session  string   `json:"session,omitempty"`
	Lines    []string `json:"lines,omitempty"`
	Index    int      `json:"index"`
	Line     string   `json:"line,omitempty"`
	Replaced bool     `json:"replaced,omitempty"`
	Title    string   `json:"title,omitempty"`
	URL      string   `json:"url,omitempty"`
	Size     int      `json:"size,omitempty"`
}

// previewClient is one connected preview socket. mu serializes writes;
// the read loop owns the read side and surfaces peer closure.
type previewClient struct {
	id   string
	conn net.Conn
	mu   sync.Mutex
}

func (c *previewClient) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(clientWriteTimeout))
	return wsutil.WriteServerMessage(c.conn, ws.OpText, data)
}

// PreviewServer pushes recorded steps and page captures to any number of
// websocket clients, and serves the static preview page plus the latest
// sanitized snapshot over plain http.
type PreviewServer struct {
	log     *zap.Logger
	session string
	// lines supplies the current step list, replayed to newly connected
	// clients in the hello message.
	lines func() []string

	httpSrv *http.Server

	mu      sync.Mutex
	closed  bool
	clients map[string]*previewClient
	plain   []byte // nil while the stored snapshot is compressed
	br      []byte
	// snapMeta is the last snapshot announcement, replayed to clients
	// that connect after the page settled.
	snapMeta *Message

	wg sync.WaitGroup
}

// NewPreviewServer builds an idle server for one recording session.
func NewPreviewServer(session string, lines func() []string, log *zap.Logger) *PreviewServer {
	if log == nil {
		log = zap.NewNop()
	}
	if lines == nil {
		lines = func() []string { return nil }
	}
	s := &PreviewServer{
		log:     log.Named("preview"),
		session: session,
		lines:   lines,
		clients: make(map[string]*previewClient),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/ws", s.handleSocket)
	mux.HandleFunc("/snapshot", s.handleSnapshot)
	s.httpSrv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	return s
}

// Start begins serving on addr and returns the bound address, which
// differs from addr when it asked for port 0.
func (s *PreviewServer) Start(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("Preview server stopped.", zap.Error(err))
		}
	}()
	s.log.Info("Preview server listening.", zap.String("address", ln.Addr().String()))
	return ln.Addr().String(), nil
}

// Close stops the listener and disconnects every client.
func (s *PreviewServer) Close() error {
	err := s.httpSrv.Close()

	s.mu.Lock()
	s.closed = true
	clients := make([]*previewClient, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.clients = make(map[string]*previewClient)
	s.mu.Unlock()

	// Close closes the listener and tracked connections, but upgraded
	// sockets are hijacked and ours to tear down.
	for _, c := range clients {
		c.conn.Close()
	}
	s.wg.Wait()
	return err
}

// ClientCount reports how many preview clients are connected.
func (s *PreviewServer) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Broadcast pushes one message to every connected client. Clients whose
// write fails are dropped.
func (s *PreviewServer) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.log.Error("Failed to encode preview message.", zap.Error(err))
		return
	}

	s.mu.Lock()
	targets := make([]*previewClient, 0, len(s.clients))
	for _, c := range s.clients {
		targets = append(targets, c)
	}
	s.mu.Unlock()

	for _, c := range targets {
		if err := c.send(data); err != nil {
			s.drop(c, "write failed")
		}
	}
}

// SetSnapshot stores the latest sanitized page capture. Large bodies are
// kept brotli compressed and inflated, or served compressed, on demand.
func (s *PreviewServer) SetSnapshot(title, url string, body []byte) {
	var plain, compressed []byte
	if len(body) >= compressThreshold {
		var buf bytes.Buffer
		bw := brotli.NewWriter(&buf)
		_, werr := bw.Write(body)
		cerr := bw.Close()
		if werr == nil && cerr == nil {
			compressed = buf.Bytes()
		} else {
			plain = body
		}
	} else {
		plain = body
	}

	meta := &Message{Type: MessageSnapshot, Title: title, URL: url, Size: len(body)}
	s.mu.Lock()
	s.plain, s.br, s.snapMeta = plain, compressed, meta
	s.mu.Unlock()
}

func (s *PreviewServer) handleSocket(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.log.Debug("Websocket upgrade failed.", zap.Error(err))
		return
	}
	client := &previewClient{id: uuid.NewString(), conn: conn}

	// Register before the hello so no broadcast can slip past a client
	// that has already seen the replayed lines. A frame racing ahead of
	// the hello is harmless; the hello resets the client's whole list.
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.clients[client.id] = client
	count := len(s.clients)
	s.mu.Unlock()

	s.mu.Lock()
	meta := s.snapMeta
	s.mu.Unlock()

	hello, err := json.Marshal(Message{Type: MessageHello, Session: s.session, Lines: s.lines()})
	if err == nil {
		err = client.send(hello)
	}
	// Without the replayed announcement a late joiner would stare at an
	// empty header until the page next changed.
	if err == nil && meta != nil {
		var data []byte
		if data, err = json.Marshal(*meta); err == nil {
			err = client.send(data)
		}
	}
	if err != nil {
		s.log.Debug("Dropping preview client during handshake.", zap.Error(err))
		s.drop(client, "handshake failed")
		return
	}
	s.log.Info("Preview client connected.", zap.String("client_id", client.id), zap.Int("clients", count))

	s.wg.Add(1)
	go s.readLoop(client)
}

// readLoop drains the client's read side. Preview clients send nothing
// meaningful; reading is what surfaces close frames and dead peers.
func (s *PreviewServer) readLoop(c *previewClient) {
	defer s.wg.Done()
	for {
		if _, _, err := wsutil.ReadClientData(c.conn); err != nil {
			break
		}
	}
	s.drop(c, "peer closed")
}

func (s *PreviewServer) drop(c *previewClient, reason string) {
	s.mu.Lock()
	_, present := s.clients[c.id]
	delete(s.clients, c.id)
	s.mu.Unlock()

	c.conn.Close()
	if present {
		s.log.Info("Preview client disconnected.", zap.String("client_id", c.id), zap.String("reason", reason))
	}
}

func (s *PreviewServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, previewPage)
}

func (s *PreviewServer) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	plain, compressed := s.plain, s.br
	s.mu.Unlock()

	w.Header().Set("Cache-Control", "no-store")
	switch {
	case compressed != nil && acceptsBrotli(r):
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Content-Encoding", "br")
		_, _ = w.Write(compressed)
	case compressed != nil:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if _, err := io.Copy(w, brotli.NewReader(bytes.NewReader(compressed))); err != nil {
			s.log.Debug("Snapshot inflate aborted.", zap.Error(err))
		}
	case plain != nil:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(plain)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func acceptsBrotli(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		enc, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		if strings.EqualFold(strings.TrimSpace(enc), "br") {
			return true
		}
	}
	return false
}

// previewPage is the static client served at the server root. It renders
// the growing step list from the websocket and reloads the snapshot frame
// whenever a fresh capture lands.
const previewPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>waldo recording</title>
<style>
  body { margin: 0; display: flex; height: 100vh; font-family: -apple-system, "Segoe UI", Roboto, sans-serif; background: #1c1f26; color: #e8eaed; }
  #side { width: 420px; display: flex; flex-direction: column; border-right: 1px solid #333; }
  #head { padding: 12px 16px; border-bottom: 1px solid #333; }
  #head h1 { font-size: 15px; margin: 0 0 4px; }
  #page { font-size: 12px; color: #9aa0a6; overflow-wrap: anywhere; }
  #steps { flex: 1; overflow-y: auto; margin: 0; padding: 12px 16px 12px 40px; font-family: ui-monospace, "SF Mono", Consolas, monospace; font-size: 12px; line-height: 1.9; }
  #steps li { overflow-wrap: anywhere; }
  #steps li.fresh { color: #7ee787; }
  #view { flex: 1; background: #fff; }
  #view iframe { width: 100%; height: 100%; border: 0; }
</style>
</head>
<body>
<div id="side">
  <div id="head">
    <h1>waldo recording</h1>
    <div id="page">waiting for the page&hellip;</div>
  </div>
  <ol id="steps"></ol>
</div>
<div id="view"><iframe id="frame" src="/snapshot" sandbox="allow-same-origin"></iframe></div>
<script>
  var lines = [];
  var list = document.getElementById('steps');
  var page = document.getElementById('page');
  var frame = document.getElementById('frame');

  function render(fresh) {
    list.textContent = '';
    for (var i = 0; i < lines.length; i++) {
      var li = document.createElement('li');
      li.textContent = lines[i];
      if (i === fresh) { li.className = 'fresh'; }
      list.appendChild(li);
    }
    list.scrollTop = list.scrollHeight;
  }

  var sock = new WebSocket('ws://' + location.host + '/ws');
  sock.onmessage = function (e) {
    var msg = JSON.parse(e.data);
    if (msg.type === 'hello') {
      lines = msg.lines || [];
      render(-1);
    } else if (msg.type === 'step') {
      lines[msg.index] = msg.line;
      render(msg.index);
    } else if (msg.type === 'snapshot') {
      page.textContent = (msg.title ? msg.title + ' | ' : '') + (msg.url || '');
      frame.src = '/snapshot?t=' + Date.now();
    }
  };
  sock.onclose = function () {
    page.textContent = 'recording finished';
  };
</script>
</body>
</html>
`
