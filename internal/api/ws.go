package api

import (
	"encoding/json"

	"github.com/olahol/melody"

	"github.com/sudomakeinstall/cardio/internal/logger"
)

// Message is what the websocket pushes to clients
type Message struct {
	Type  string `json:"type"`
	State State  `json:"state"`
}

// MessageTypeState is sent on connect and after every session change
const MessageTypeState = "state"

// WSHandler pushes session state to every connected websocket client
type WSHandler struct {
	melody  *melody.Melody
	session *Session
	log     logger.ILogger
}

func MakeWSHandler(m *melody.Melody, session *Session, log logger.ILogger) *WSHandler {
	ws := &WSHandler{melody: m, session: session, log: log}
	m.HandleConnect(ws.HandleConnect)
	m.HandleDisconnect(ws.HandleDisconnect)
	return ws
}

func (ws *WSHandler) message(st State) ([]byte, error) {
	return json.Marshal(Message{Type: MessageTypeState, State: st})
}

// HandleConnect sends the new client the current state
func (ws *WSHandler) HandleConnect(s *melody.Session) {
	wsSessions.Inc()
	data, err := ws.message(ws.session.State())
	if err != nil {
		ws.log.Errorf("Failed to build state for new websocket client: %v", err)
		return
	}
	if err := s.Write(data); err != nil {
		ws.log.Errorf("Failed to send state to websocket client: %v", err)
	}
}

func (ws *WSHandler) HandleDisconnect(s *melody.Session) {
	wsSessions.Dec()
}

// Broadcast sends st to every client. It is the session listener.
func (ws *WSHandler) Broadcast(st State) {
	data, err := ws.message(st)
	if err != nil {
		ws.log.Errorf("Failed to build state broadcast: %v", err)
		return
	}
	if err := ws.melody.Broadcast(data); err != nil {
		ws.log.Errorf("Failed to broadcast state: %v", err)
	}
}
