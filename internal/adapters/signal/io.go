package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dkeye/callhub/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	defer c.Close()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-c.pings:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, s *session) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", s.token).Str("user", string(s.userID)).Msg("readPump closing")
		if s.joined() {
			ctl.Orch.Disconnect(s.userID, s.connID)
		}
		s.conn.Close()
	}()

	ws := s.conn.conn
	if ctl.opts.ReadLimit > 0 {
		ws.SetReadLimit(ctl.opts.ReadLimit)
	}
	ws.SetPongHandler(func(string) error {
		if s.joined() {
			ctl.Orch.TouchConnection(s.connID)
		}
		return nil
	})

	for {
		if ctx.Err() != nil {
			log.Info().Str("module", "signal").Str("sid", s.token).Msg("readPump ctx done")
			return
		}
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("sid", s.token).Msg("readPump read error")
			}
			return
		}
		ctl.handleSignal(ctx, s, data)
	}
}

// handleSignal dispatches one inbound frame. Bad frames are answered with
// an error push and the socket stays open.
func (ctl *SignalWSController) handleSignal(ctx context.Context, s *session, data []byte) {
	if !gjson.ValidBytes(data) {
		log.Warn().Str("module", "signal").Str("sid", s.token).Msg("bad json")
		ctl.sendError(s, "", errBadPayload)
		return
	}
	typ := gjson.GetBytes(data, "type").String()

	switch typ {
	case core.EventJoin:
		ctl.handleJoin(s, data)
	case core.EventHeartbeatPing:
		ctl.handleHeartbeat(s, data)
	case core.EventDisconnect:
		ctl.handleDisconnect(s)
	case core.EventGroupCallStart:
		ctl.handleGroupCallStart(s, data)
	case core.EventGroupCallJoin:
		ctl.handleGroupCallJoin(s, data)
	case core.EventGroupCallLeave:
		ctl.handleGroupCallLeave(s, data)
	case core.EventGroupCallEnd:
		ctl.handleGroupCallEnd(s, data)
	case core.EventIndividualCallStart:
		ctl.handleIndividualCallStart(s, data)
	case core.EventIndividualCallRespond:
		ctl.handleIndividualCallRespond(s, data)
	case core.EventMediaCapabilities:
		ctl.handleMediaCapabilities(s)
	case core.EventMediaOffer:
		ctl.handleMediaOffer(ctx, s, data)
	case core.EventMediaAnswer:
		ctl.handleMediaAnswer(s, data)
	case core.EventMediaCandidate:
		ctl.handleMediaCandidate(s, data)
	case core.EventMediaMute:
		ctl.handleMediaMute(s, data)
	default:
		log.Warn().Str("module", "signal").Str("type", typ).Msg("unknown signal")
		ctl.sendError(s, typ, errUnknownType)
	}
}

// Error codes sent in error pushes.
var (
	errBadPayload   = errors.New("bad_payload")
	errUnknownType  = errors.New("unknown_type")
	errNotJoined    = errors.New("not_joined")
	errRateLimited  = errors.New("rate_limited")
	errCallNotFound = errors.New("call_not_found")
	errInvalidField = errors.New("invalid_field")
	errMediaFailed  = errors.New("media_failed")
)

// missing returns the first path absent from data, or "".
func missing(data []byte, paths ...string) string {
	for i, r := range gjson.GetManyBytes(data, paths...) {
		if !r.Exists() || (r.Type == gjson.String && r.Str == "") {
			return paths[i]
		}
	}
	return ""
}

// decode checks required fields and unmarshals data into v.
func (ctl *SignalWSController) decode(s *session, event string, data []byte, v any, required ...string) bool {
	if field := missing(data, required...); field != "" {
		log.Warn().Str("module", "signal").Str("type", event).Str("field", field).Msg("missing field")
		ctl.sendError(s, event, errBadPayload)
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("type", event).Msg("bad payload")
		ctl.sendError(s, event, errBadPayload)
		return false
	}
	return true
}

func (ctl *SignalWSController) sendJSON(s *session, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	if err := s.conn.TrySend(b); err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("user", string(s.userID)).Msg("sendJSON dropped")
	}
}

func (ctl *SignalWSController) sendError(s *session, event string, code error) {
	ctl.sendJSON(s, core.ErrorPush{
		Envelope: core.NewEnvelope(core.PushError, ctl.Orch.Now()),
		Error:    code.Error(),
		Event:    event,
	})
}
