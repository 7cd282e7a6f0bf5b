package server

import (
	"crypto/tls"
	"csms/internal"
	"csms/internal/config"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const (
	apiEndpoint = "/api"
)

// Api is the management surface: a single POST endpoint accepting
// commands for connected charge points. Delivery status is all it
// reports; command outcomes arrive asynchronously over the socket.
type Api struct {
	conf           *config.Config
	httpServer     *http.Server
	commandHandler func(command *CentralSystemCommand) error
	logger         internal.LogHandler
}

type apiResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func NewServerApi(conf *config.Config, logger internal.LogHandler) *Api {
	server := Api{
		conf:   conf,
		logger: logger,
	}
	server.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%s", conf.Api.BindIP, conf.Api.Port),
		Handler: http.HandlerFunc(server.handleRoot),
	}
	return &server
}

func (s *Api) Start() error {
	if s.conf.Api.TLS {
		cert, err := tls.LoadX509KeyPair(s.conf.Api.CertFile, s.conf.Api.KeyFile)
		if err != nil {
			return fmt.Errorf("api: failed to load certificate: %v", err)
		}
		s.httpServer.TLSConfig = &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{cert},
		}
		return s.httpServer.ListenAndServeTLS("", "")
	}
	return s.httpServer.ListenAndServe()
}

func (s *Api) SetCommandHandler(handler func(command *CentralSystemCommand) error) {
	s.commandHandler = handler
}

func (s *Api) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.logger.Warn(fmt.Sprintf("api: invalid method %s from %s", r.Method, r.RemoteAddr))
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if r.URL.Path != apiEndpoint {
		s.logger.Warn(fmt.Sprintf("api: invalid path %s from %s", r.URL.Path, r.RemoteAddr))
		w.WriteHeader(http.StatusNotFound)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.logger.Warn(fmt.Sprintf("api: error reading body from %s: %s", r.RemoteAddr, err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	var command CentralSystemCommand
	if err = json.Unmarshal(body, &command); err != nil {
		s.logger.Warn(fmt.Sprintf("api: error parsing command from %s: %s", r.RemoteAddr, err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if command.FeatureName == "" || command.ChargePointId == "" {
		s.writeResponse(w, http.StatusBadRequest, apiResponse{Status: "rejected", Error: "charge_point_id and feature_name are required"})
		return
	}

	if err = s.commandHandler(&command); err != nil {
		s.logger.Warn(fmt.Sprintf("api: command %s for %s failed: %s", command.FeatureName, command.ChargePointId, err))
		s.writeResponse(w, http.StatusBadGateway, apiResponse{Status: "failed", Error: err.Error()})
		return
	}
	s.writeResponse(w, http.StatusOK, apiResponse{Status: "sent"})
}

func (s *Api) writeResponse(w http.ResponseWriter, code int, response apiResponse) {
	w.Header().Add("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	data, _ := json.Marshal(response)
	if _, err := w.Write(data); err != nil {
		s.logger.Error("api: writing response", err)
	}
}
