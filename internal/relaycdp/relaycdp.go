// Package relaycdp implements the CDP Relay Server (spec.md §4.1, C5): a
// WebSocket broker that pairs exactly one CDP client (chromedp, dialing
// /cdp as an ordinary remote-debugging endpoint) with exactly one browser
// extension peer (dialing /extension, the thing that actually owns a real
// Chrome Debugger Protocol session via chrome.debugger). Commands flow
// client -> relay -> extension wrapped in a forwardCDPCommand envelope;
// results and events flow back the other way. A handful of CDP methods
// the extension side has no useful answer for are synthesized locally.
package relaycdp

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// frame is the wire shape shared by every direction of this protocol
// (spec.md §6): client->relay commands, relay->client responses/events,
// and relay->extension/extension->relay envelopes all use the same tagged
// record, distinguished by which optional fields are present.
type frame struct {
	ID        int64           `json:"id,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Method    string          `json:"method,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *frameError     `json:"error,omitempty"`
}

type frameError struct {
	Message string `json:"message"`
	Code    int    `json:"code,omitempty"`
}

// forwardParams is the payload of a relay->extension forwardCDPCommand
// frame: the original client command, minus its client-assigned id (the
// envelope uses the relay's own id instead, per spec.md §4.1 Correlation).
// SessionID is a pointer so a command with no session serializes as the
// literal JSON null shown in spec.md's worked examples, not an omitted key.
type forwardParams struct {
	SessionID *string         `json:"sessionId"`
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params,omitempty"`
}

type targetInfo struct {
	TargetID         string `json:"targetId"`
	Type             string `json:"type"`
	Title            string `json:"title"`
	URL              string `json:"url"`
	Attached         bool   `json:"attached"`
	BrowserContextID string `json:"browserContextId,omitempty"`
}

type attachToTabResult struct {
	SessionID  string     `json:"sessionId"`
	TargetInfo targetInfo `json:"targetInfo"`
}

type attachedToTargetParams struct {
	SessionID          string     `json:"sessionId"`
	TargetInfo         targetInfo `json:"targetInfo"`
	WaitingForDebugger bool       `json:"waitingForDebugger"`
}

// Methods answered locally per spec.md §4.1's command interception table.
const (
	methodBrowserGetVersion   = "Browser.getVersion"
	methodSetDownloadBehavior = "Browser.setDownloadBehavior"
	methodTargetSetAutoAttach = "Target.setAutoAttach"
	methodTargetGetTargetInfo = "Target.getTargetInfo"
	methodAttachedToTarget    = "Target.attachedToTarget"
	methodAttachToTab         = "attachToTab"
	methodDetachFromTab       = "detachFromTab"
	methodDetachedFromTab     = "detachedFromTab"
	methodForwardCDPCommand   = "forwardCDPCommand"
	methodForwardCDPEvent     = "forwardCDPEvent"
)

const (
	closeSuperseded  ws.StatusCode = 1000
	closeUnknownPath ws.StatusCode = 4004
	pendingTimeout                 = 30 * time.Second
)

type relayState int32

const (
	stateInit relayState = iota
	stateWaitExt
	statePaired
	stateActive
)

// Server is the CDP Relay Server. It holds at most one CDP-client
// connection and one extension connection at a time (I2); a new
// connection on either side supersedes the previous one, closed with
// code 1000.
type Server struct {
	mu    sync.Mutex
	state relayState

	extConn net.Conn
	cdpConn net.Conn

	nextID  atomic.Int64
	pending map[int64]chan frame

	attachment *attachToTabResult

	extReady chan struct{} // closed when an extension is attached; recreated on detach

	httpSrv   *http.Server
	closeOnce sync.Once
}

// NewServer builds an unstarted relay. Call Serve to accept connections.
func NewServer() *Server {
	s := &Server{
		pending:  make(map[int64]chan frame),
		extReady: make(chan struct{}),
		state:    stateInit,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/cdp", s.handleCDPClient)
	mux.HandleFunc("/extension", s.handleExtension)
	mux.HandleFunc("/", s.handleUnknownPath)
	s.httpSrv = &http.Server{Handler: mux}
	return s
}

// Serve runs the HTTP/WebSocket listener until Close is called.
func (s *Server) Serve(ln net.Listener) error {
	err := s.httpSrv.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Close shuts down the listener and both peer connections.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.httpSrv.Close()
		s.mu.Lock()
		if s.extConn != nil {
			_ = s.extConn.Close()
		}
		if s.cdpConn != nil {
			_ = s.cdpConn.Close()
		}
		s.mu.Unlock()
	})
	return err
}

func (s *Server) handleUnknownPath(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	_ = wsutil.WriteServerMessage(conn, ws.OpClose, ws.NewCloseFrameBody(closeUnknownPath, "Invalid path"))
	_ = conn.Close()
}

// handleExtension accepts the single browser-extension peer (spec.md
// §4.1 "/extension"). A fresh connection replaces any prior one and
// resolves the extReady signal so commands queued during WAIT_EXT can
// proceed, in arrival order (B1).
func (s *Server) handleExtension(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		slog.Warn("relay: extension upgrade failed", "error", err)
		return
	}

	s.mu.Lock()
	if s.extConn != nil {
		superseded := s.extConn
		go supersede(superseded)
	}
	s.extConn = conn
	if s.cdpConn != nil {
		s.state = stateActive
	} else {
		s.state = statePaired
	}
	ready := s.extReady
	s.mu.Unlock()
	select {
	case <-ready:
	default:
		close(ready)
	}

	slog.Info("relay: extension connected")
	s.extensionReadLoop(conn)
}

// handleCDPClient accepts the single CDP client peer (spec.md §4.1
// "/cdp"). Intercepted commands are answered at once; any other command
// blocks the read loop until an extension is attached, which is what
// makes B1 hold.
func (s *Server) handleCDPClient(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		slog.Warn("relay: cdp client upgrade failed", "error", err)
		return
	}

	s.mu.Lock()
	if s.cdpConn != nil {
		superseded := s.cdpConn
		go supersede(superseded)
	}
	s.cdpConn = conn
	if s.extConn != nil {
		s.state = stateActive
	} else {
		s.state = stateWaitExt
	}
	s.mu.Unlock()

	slog.Info("relay: cdp client connected")
	s.cdpReadLoop(conn)
}

func supersede(conn net.Conn) {
	_ = wsutil.WriteServerMessage(conn, ws.OpClose, ws.NewCloseFrameBody(closeSuperseded, "New connection established"))
	_ = conn.Close()
}

func (s *Server) cdpReadLoop(conn net.Conn) {
	for {
		data, _, err := wsutil.ReadClientData(conn)
		if err != nil {
			slog.Info("relay: cdp client disconnected", "error", err)
			s.mu.Lock()
			if s.cdpConn == conn {
				s.cdpConn = nil
			}
			extConn := s.extConn
			s.mu.Unlock()
			// DRAIN: client left, best-effort detach so the extension's
			// debugger session doesn't linger (spec.md §4.1 state machine).
			if extConn != nil {
				s.sendToExtension(methodDetachFromTab, nil, "")
			}
			return
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			slog.Warn("relay: malformed cdp client frame", "error", err)
			continue
		}
		// Every non-intercepted command waits until an extension is
		// attached (extReady is recreated whenever the extension
		// disconnects), in arrival order, since the read loop itself is
		// single-threaded per socket.
		if !s.isIntercepted(f) {
			s.mu.Lock()
			ready := s.extReady
			s.mu.Unlock()
			<-ready
		}
		s.handleClientFrame(f)
	}
}

func (s *Server) isIntercepted(f frame) bool {
	switch f.Method {
	case methodBrowserGetVersion, methodSetDownloadBehavior, methodTargetGetTargetInfo:
		return true
	case methodTargetSetAutoAttach:
		return f.SessionID == ""
	default:
		return false
	}
}

func (s *Server) handleClientFrame(f frame) {
	switch {
	case f.Method == methodBrowserGetVersion:
		s.replyToClient(f.ID, json.RawMessage(`{"protocolVersion":"1.3","product":"Chrome/Bridge","userAgent":"CDP-Bridge/1.0"}`), nil)

	case f.Method == methodSetDownloadBehavior:
		// Open question left unresolved in spec.md §9: answered without
		// consulting the extension at all.
		s.replyToClient(f.ID, json.RawMessage(`{}`), nil)

	case f.Method == methodTargetSetAutoAttach && f.SessionID == "":
		s.synthesizeAutoAttach(f.ID)

	case f.Method == methodTargetGetTargetInfo:
		s.mu.Lock()
		att := s.attachment
		s.mu.Unlock()
		if att == nil {
			s.replyToClient(f.ID, nil, &frameError{Message: "no attachment recorded"})
			return
		}
		body, _ := json.Marshal(struct {
			TargetInfo targetInfo `json:"targetInfo"`
		}{att.TargetInfo})
		s.replyToClient(f.ID, body, nil)

	default:
		s.forwardCommand(f)
	}
}

// synthesizeAutoAttach implements spec.md §4.1's Target.setAutoAttach
// (no sessionId) row and scenario S3: ask the extension to attach, store
// the result, emit an unsolicited Target.attachedToTarget to the client,
// then reply empty success to the original id.
func (s *Server) synthesizeAutoAttach(clientID int64) {
	resp, err := s.callExtension(methodAttachToTab, nil, "")
	if err != nil {
		s.replyToClient(clientID, nil, &frameError{Message: err.Error()})
		return
	}
	var att attachToTabResult
	if err := json.Unmarshal(resp.Result, &att); err != nil {
		s.replyToClient(clientID, nil, &frameError{Message: "malformed attachToTab result"})
		return
	}
	att.TargetInfo.Attached = true

	s.mu.Lock()
	s.attachment = &att
	s.mu.Unlock()

	eventParams, _ := json.Marshal(attachedToTargetParams{
		SessionID:          att.SessionID,
		TargetInfo:         att.TargetInfo,
		WaitingForDebugger: false,
	})
	s.writeToClient(frame{Method: methodAttachedToTarget, Params: eventParams})
	s.replyToClient(clientID, json.RawMessage(`{}`), nil)
}

// forwardCommand implements spec.md §4.1's default forwarding path and
// the wire shape from scenario S1: wrap the client's command in a
// forwardCDPCommand envelope keyed by a relay-allocated id, and relay
// the extension's eventual reply back under the client's original id.
func (s *Server) forwardCommand(f frame) {
	resp, err := s.callExtension(methodForwardCDPCommand, forwardEnvelopeParams(f), f.SessionID)
	if err != nil {
		s.replyToClient(f.ID, nil, &frameError{Message: err.Error()})
		return
	}
	s.replyToClient(f.ID, resp.Result, resp.Error)
}

func forwardEnvelopeParams(f frame) json.RawMessage {
	var sessionID *string
	if f.SessionID != "" {
		sessionID = &f.SessionID
	}
	body, _ := json.Marshal(forwardParams{SessionID: sessionID, Method: f.Method, Params: f.Params})
	return body
}

// callExtension sends method/params to the extension under a fresh
// relay-allocated id and blocks for its correlated reply or a timeout.
// sessionID is carried only for forwardCDPCommand envelopes; attachToTab
// and detachFromTab ignore it.
func (s *Server) callExtension(method string, params json.RawMessage, sessionID string) (frame, error) {
	s.mu.Lock()
	extConn := s.extConn
	s.mu.Unlock()
	if extConn == nil {
		return frame{}, fmt.Errorf("extension disconnected before command could be processed")
	}

	id := s.nextID.Add(1)
	ch := make(chan frame, 1)
	s.mu.Lock()
	s.pending[id] = ch
	s.mu.Unlock()

	req := frame{ID: id, Method: method, Params: params}
	if sessionID != "" {
		req.SessionID = sessionID
	}
	body, _ := json.Marshal(req)
	if err := wsutil.WriteServerMessage(extConn, ws.OpText, body); err != nil {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		return frame{}, fmt.Errorf("write to extension: %w", err)
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-time.After(pendingTimeout):
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		return frame{}, fmt.Errorf("extension response timeout")
	}
}

// sendToExtension is a fire-and-forget variant of callExtension, used for
// detachFromTab where the relay does not need (or wait for) a reply.
func (s *Server) sendToExtension(method string, params json.RawMessage, sessionID string) {
	s.mu.Lock()
	extConn := s.extConn
	s.mu.Unlock()
	if extConn == nil {
		return
	}
	id := s.nextID.Add(1)
	req := frame{ID: id, Method: method, Params: params, SessionID: sessionID}
	body, _ := json.Marshal(req)
	if err := wsutil.WriteServerMessage(extConn, ws.OpText, body); err != nil {
		slog.Warn("relay: detach notification failed", "error", err)
	}
}

func (s *Server) replyToClient(id int64, result json.RawMessage, errv *frameError) {
	f := frame{ID: id, Result: result, Error: errv}
	if result == nil && errv == nil {
		f.Result = json.RawMessage(`{}`)
	}
	s.writeToClient(f)
}

func (s *Server) writeToClient(f frame) {
	s.mu.Lock()
	conn := s.cdpConn
	s.mu.Unlock()
	if conn == nil {
		return
	}
	body, err := json.Marshal(f)
	if err != nil {
		return
	}
	if err := wsutil.WriteServerMessage(conn, ws.OpText, body); err != nil {
		slog.Warn("relay: write to cdp client failed", "error", err)
	}
}

func (s *Server) extensionReadLoop(conn net.Conn) {
	for {
		data, _, err := wsutil.ReadClientData(conn)
		if err != nil {
			slog.Info("relay: extension disconnected", "error", err)
			s.mu.Lock()
			if s.extConn == conn {
				s.extConn = nil
				s.attachment = nil
				s.extReady = make(chan struct{})
			}
			s.failAllPendingLocked("WebSocket closed")
			s.mu.Unlock()
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			slog.Warn("relay: malformed extension frame", "error", err)
			continue
		}

		switch {
		case f.ID != 0 && (f.Result != nil || f.Error != nil):
			s.resolvePending(f)
		case f.Method == methodForwardCDPEvent:
			s.relayEvent(f.Params)
		case f.Method == methodDetachedFromTab:
			s.mu.Lock()
			s.attachment = nil
			s.mu.Unlock()
		default:
			slog.Warn("relay: unrecognized frame from extension", "method", f.Method)
		}
	}
}

func (s *Server) resolvePending(f frame) {
	s.mu.Lock()
	ch, ok := s.pending[f.ID]
	if ok {
		delete(s.pending, f.ID)
	}
	s.mu.Unlock()
	if ok {
		ch <- f
	} else {
		slog.Warn("relay: reply with unknown id dropped", "id", f.ID)
	}
}

// relayEvent implements R2: unwrap a forwardCDPEvent envelope and deliver
// {sessionId, method, params} to the client verbatim.
func (s *Server) relayEvent(envelopeParams json.RawMessage) {
	var inner forwardParams
	if err := json.Unmarshal(envelopeParams, &inner); err != nil {
		slog.Warn("relay: malformed forwardCDPEvent params", "error", err)
		return
	}
	var sessionID string
	if inner.SessionID != nil {
		sessionID = *inner.SessionID
	}
	s.writeToClient(frame{SessionID: sessionID, Method: inner.Method, Params: inner.Params})
}

// failAllPendingLocked rejects every outstanding forwarded command (B2).
// Callers must hold s.mu.
func (s *Server) failAllPendingLocked(reason string) {
	for id, ch := range s.pending {
		ch <- frame{ID: id, Error: &frameError{Message: reason}}
		delete(s.pending, id)
	}
}
