package server

import (
	"csms/internal"
	"csms/internal/config"
	"csms/ocpp"
	"csms/utility"
	"fmt"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"net"
	"net/http"
	"sync"
)

const (
	wsEndpoint = "/ws/:id"
)

// Server accepts charge point websocket connections, runs the provisioning
// gate through the registry and feeds inbound frames to the message handler.
type Server struct {
	conf           *config.Config
	httpServer     *http.Server
	upgrader       websocket.Upgrader
	registry       *Registry
	messageHandler func(ws ClientConnection, data []byte) error
	logger         internal.LogHandler
}

// ClientConnection is the side of a charge point socket the message
// dispatcher works with.
type ClientConnection interface {
	ID() string
	WriteMessage(data []byte) error
	IsClosed() bool
}

// WebSocket is one charge point connection. Writes are serialized with a
// mutex because protocol replies and outbound commands share the socket.
type WebSocket struct {
	conn   *websocket.Conn
	id     string
	mux    sync.Mutex
	closed bool
}

func (ws *WebSocket) ID() string {
	return ws.id
}

func (ws *WebSocket) WriteMessage(data []byte) error {
	ws.mux.Lock()
	defer ws.mux.Unlock()
	if ws.closed {
		return utility.Err("connection is closed")
	}
	return ws.conn.WriteMessage(websocket.TextMessage, data)
}

func (ws *WebSocket) Close() error {
	ws.mux.Lock()
	defer ws.mux.Unlock()
	if ws.closed {
		return nil
	}
	ws.closed = true
	return ws.conn.Close()
}

func (ws *WebSocket) IsClosed() bool {
	ws.mux.Lock()
	defer ws.mux.Unlock()
	return ws.closed
}

func NewServer(conf *config.Config, logger internal.LogHandler, registry *Registry) *Server {
	server := Server{
		conf:     conf,
		logger:   logger,
		registry: registry,
		upgrader: websocket.Upgrader{Subprotocols: []string{}},
	}
	// register itself as a router for httpServer handler
	router := httprouter.New()
	server.Register(router)
	server.httpServer = &http.Server{
		Handler: router,
	}
	return &server
}

func (s *Server) AddSupportedSubProtocol(proto string) {
	for _, sub := range s.upgrader.Subprotocols {
		if sub == proto {
			return
		}
	}
	s.upgrader.Subprotocols = append(s.upgrader.Subprotocols, proto)
}

func (s *Server) SetMessageHandler(handler func(ws ClientConnection, data []byte) error) {
	s.messageHandler = handler
}

func (s *Server) Register(router *httprouter.Router) {
	router.GET(wsEndpoint, s.handleWsRequest)
}

func (s *Server) handleWsRequest(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	id := params.ByName("id")
	s.logger.Debug(fmt.Sprintf("connection initiated from remote %s", r.RemoteAddr))

	s.upgrader.CheckOrigin = func(r *http.Request) bool {
		return true
	}

	clientSubProto := websocket.Subprotocols(r)
	requestedProto := ""
	for _, proto := range clientSubProto {
		if len(s.upgrader.Subprotocols) == 0 {
			// supporting all protocols
			requestedProto = proto
			break
		}
		if utility.Contains(s.upgrader.Subprotocols, proto) {
			requestedProto = proto
			break
		}
	}
	responseHeader := http.Header{}
	if requestedProto != "" {
		responseHeader.Add("Sec-WebSocket-Protocol", requestedProto)
	}

	conn, err := s.upgrader.Upgrade(w, r, responseHeader)
	if err != nil {
		s.logger.Error("upgrade failed: ", err)
		return
	}

	ws := WebSocket{
		conn: conn,
		id:   id,
	}

	// provisioning gate: unknown charge points never get a protocol session
	if !s.registry.Register(id, &ws, r.RemoteAddr) {
		_ = ws.Close()
		return
	}

	s.logger.Debug(fmt.Sprintf("upgraded socket for %s and ready to receive data", id))
	go s.messageReader(&ws)
}

func (s *Server) messageReader(ws *WebSocket) {
	conn := ws.conn
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, 3001) {
				s.logger.Debug(fmt.Sprintf("id %s leaving session", ws.id))
			} else {
				s.logger.Debug(fmt.Sprintf("id %s is closing session %s", ws.id, err))
			}
			s.registry.Remove(ws.id, ws)
			return
		}
		s.logger.RawDataEvent("IN", string(message))
		if s.messageHandler != nil {
			// frames are handled in arrival order; a handler error never
			// tears down the connection
			err = s.messageHandler(ws, message)
			if err != nil {
				s.logger.Error(fmt.Sprintf("handling message from %s", ws.id), err)
				continue
			}
		}
	}
}

func (s *Server) Start() error {
	if s.conf == nil {
		return utility.Err("configuration not loaded")
	}
	serverAddress := fmt.Sprintf("%s:%s", s.conf.Listen.BindIP, s.conf.Listen.Port)
	s.logger.Debug(fmt.Sprintf("starting server on %s", serverAddress))
	listener, err := net.Listen("tcp", serverAddress)
	if err != nil {
		return err
	}
	if s.conf.Listen.TLS {
		s.logger.Debug("starting https TLS server")
		err = s.httpServer.ServeTLS(listener, s.conf.Listen.CertFile, s.conf.Listen.KeyFile)
	} else {
		s.logger.Debug("starting http server")
		err = s.httpServer.Serve(listener)
	}
	return err
}

func (s *Server) SendResponse(ws ClientConnection, uniqueId string, response ocpp.Response) error {
	callResult := ocpp.NewCallResult(uniqueId, response)
	data, err := callResult.MarshalJSON()
	if err != nil {
		s.logger.Error("error encoding response", err)
		return err
	}
	s.logger.RawDataEvent("OUT", string(data))
	if err = ws.WriteMessage(data); err != nil {
		s.logger.Error("error sending response", err)
	}
	return err
}

func (s *Server) SendCallError(ws ClientConnection, uniqueId string, protoErr *ocpp.Error) error {
	callError := ocpp.NewCallError(uniqueId, protoErr)
	data, err := callError.MarshalJSON()
	if err != nil {
		s.logger.Error("error encoding call error", err)
		return err
	}
	s.logger.RawDataEvent("OUT", string(data))
	if err = ws.WriteMessage(data); err != nil {
		s.logger.Error("error sending call error", err)
	}
	return err
}
