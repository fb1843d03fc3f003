package coworker

import (
	"log/slog"

	"github.com/teslashibe/go-coworker/pkg/hub"
	"github.com/teslashibe/go-coworker/pkg/session"
)

// feedMessage is the JSON sent to /ws/events clients.
type feedMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	From      string          `json:"from,omitempty"`
	To        string          `json:"to,omitempty"`
	Status    *session.Status `json:"status,omitempty"`
}

// hubObserver forwards session updates to the status hub.
type hubObserver struct {
	hub    *hub.Hub
	logger *slog.Logger
}

func newHubObserver(h *hub.Hub, logger *slog.Logger) *hubObserver {
	return &hubObserver{hub: h, logger: logger}
}

func (o *hubObserver) OnState(sessionID string, from, to session.State) {
	o.send(feedMessage{Type: "state", SessionID: sessionID, From: from.String(), To: to.String()})
}

func (o *hubObserver) OnStatus(s session.Status) {
	o.send(feedMessage{Type: "status", SessionID: s.SessionID, Status: &s})
}

func (o *hubObserver) send(m feedMessage) {
	if err := o.hub.BroadcastJSON(m); err != nil {
		o.logger.Warn("feed encode failed", "error", err)
	}
}

// multiObserver fans out to several observers in order.
type multiObserver []session.Observer

func (m multiObserver) OnState(sessionID string, from, to session.State) {
	for _, o := range m {
		o.OnState(sessionID, from, to)
	}
}

func (m multiObserver) OnStatus(s session.Status) {
	for _, o := range m {
		o.OnStatus(s)
	}
}

func (a *App) observer() session.Observer {
	return multiObserver(append([]session.Observer{newHubObserver(a.hub, a.logger)}, a.extraObservers...))
}
