package signaling

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Muhammd-hafeef-th/Us/internal/match"
	"github.com/Muhammd-hafeef-th/Us/internal/metrics"
	"github.com/Muhammd-hafeef-th/Us/internal/moderation"
	"github.com/Muhammd-hafeef-th/Us/internal/registry"
	"github.com/Muhammd-hafeef-th/Us/internal/report"
	"github.com/Muhammd-hafeef-th/Us/internal/session"
	"github.com/Muhammd-hafeef-th/Us/internal/validate"
)

// Sender delivers one outbound event to one connection. Sends are
// best-effort, non-blocking enqueues, so they are safe to call while holding
// the engine lock.
type Sender interface {
	Send(event string, data any) bool
}

// ReportSaver persists one abuse report. Save may block on I/O and is always
// called outside the engine lock.
type ReportSaver interface {
	Save(rec report.Record) error
}

// Config wires the engine's collaborators.
type Config struct {
	Log     *slog.Logger
	Metrics *metrics.Metrics
	// Censor filters chat text before relay; nil disables filtering.
	Censor *moderation.Censor
	// Reports persists abuse reports.
	Reports ReportSaver
}

// Engine owns all matching and session state and handles every inbound event
// against it.
//
// One mutex covers the registry, the session store, and the peer map:
// matching needs a consistent snapshot across every waiting participant, and
// a single lock domain keeps each event handler one atomic state transition.
// Handlers run lock-to-completion; the only exception is report persistence,
// which snapshots under the lock and saves outside it, mutating nothing
// afterwards.
type Engine struct {
	log     *slog.Logger
	mets    *metrics.Metrics
	censor  *moderation.Censor
	reports ReportSaver

	mu       sync.Mutex
	reg      *registry.Registry
	sessions *session.Store
	peers    map[string]Sender
}

func NewEngine(cfg Config) *Engine {
	return &Engine{
		log:      cfg.Log.With("component", "signaling"),
		mets:     cfg.Metrics,
		censor:   cfg.Censor,
		reports:  cfg.Reports,
		reg:      registry.New(),
		sessions: session.NewStore(),
		peers:    map[string]Sender{},
	}
}

// Connect registers a new participant with a generated display name and
// broadcasts the updated user count to everyone.
func (e *Engine) Connect(id string, sender Sender) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.reg.Register(id, registry.GenerateDisplayName()); err != nil {
		// The transport guarantees unique connection ids; this is a bug, not
		// a user error.
		e.log.Error("connect for already-registered id", "conn", id, "err", err)
		return
	}
	e.peers[id] = sender
	e.mets.Inc(metrics.Connects)
	e.broadcastUserCountLocked()
}

// Disconnect tears a participant down completely: session detach with peer
// notification, registry removal, count broadcast. Idempotent, since leave
// events can race with the socket closing.
func (e *Engine) Disconnect(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.reg.Get(id)
	if ok {
		e.detachLocked(p, ReasonDisconnected)
		e.reg.Unregister(id)
	}
	delete(e.peers, id)
	if ok {
		e.mets.Inc(metrics.Disconnects)
		e.broadcastUserCountLocked()
	}
}

// Join handles a pairing request (target null) or an open-floor join.
func (e *Engine) Join(id string, raw json.RawMessage) {
	var req joinRequest
	if err := decodeStrict(raw, &req); err != nil {
		e.violation(EventJoin, id, err.Error())
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.reg.Get(id)
	if !ok {
		return
	}
	sender := e.peers[id]

	// Nothing is stored until the request is known to be valid; a violation or
	// rejection leaves the participant untouched.
	if req.Target != nil && *req.Target != session.OpenFloorID {
		e.violation(EventJoin, id, "unknown join target "+*req.Target)
		return
	}
	if req.DisplayName != "" {
		name, ok := validate.DisplayName(req.DisplayName)
		if !ok {
			e.reject(sender, EventJoin, "display name must be 3-50 characters")
			return
		}
		e.reg.Update(id, registry.Fields{DisplayName: &name})
	}

	interests := validate.Interests(req.Interests)
	e.reg.Update(id, registry.Fields{Interests: &interests})

	if req.Target == nil {
		e.pairLocked(p, sender, interests)
	} else {
		e.joinOpenFloorLocked(p)
	}
}

// pairLocked runs the matcher for p. A participant already in a session is
// detached first, so issuing a fresh pairing request doubles as "next".
func (e *Engine) pairLocked(p *registry.Participant, sender Sender, interests []string) {
	e.mets.Inc(metrics.PairRequests)

	if p.SessionID != "" {
		e.detachLocked(p, "")
	}

	cand, found := match.Find(e.reg, p.ID, interests)
	if !found {
		// The waiting flag is what makes them a candidate for the next
		// request; merely being registered never does.
		waiting := true
		e.reg.Update(p.ID, registry.Fields{Waiting: &waiting})
		e.mets.Inc(metrics.Waits)
		sender.Send(EventWaiting, struct{}{})
		return
	}

	s := e.sessions.CreatePair(p.ID, cand.ID)
	matched := false
	e.reg.Update(p.ID, registry.Fields{SessionID: &s.ID, Waiting: &matched})
	e.reg.Update(cand.ID, registry.Fields{SessionID: &s.ID, Waiting: &matched})

	e.mets.Inc(metrics.Matches)
	if len(cand.Shared) > 0 {
		e.mets.Inc(metrics.MatchesByInterest)
	}

	shared := cand.Shared
	if shared == nil {
		shared = []string{}
	}
	// The requester triggered the match, so it opens the peer negotiation.
	sender.Send(EventMatchFound, matchFoundEvent{SessionID: s.ID, Initiator: true, Interests: shared})
	if peer, ok := e.peers[cand.ID]; ok {
		peer.Send(EventMatchFound, matchFoundEvent{SessionID: s.ID, Initiator: false, Interests: shared})
	}
}

func (e *Engine) joinOpenFloorLocked(p *registry.Participant) {
	if p.SessionID == session.OpenFloorID {
		return
	}
	if p.SessionID != "" {
		e.detachLocked(p, "")
	}

	floor := e.sessions.OpenFloor()
	e.sessions.Join(floor.ID, p.ID)
	floorID := floor.ID
	// Joining the floor withdraws any pending pairing request.
	notWaiting := false
	e.reg.Update(p.ID, registry.Fields{SessionID: &floorID, Waiting: &notWaiting})
	e.mets.Inc(metrics.OpenFloorJoins)

	for _, other := range floor.Others(p.ID) {
		if peer, ok := e.peers[other]; ok {
			peer.Send(EventUserJoined, userJoinedEvent{DisplayName: p.DisplayName})
		}
	}
}

// Message validates, censors, and relays chat text to the other members of
// the sender's session.
func (e *Engine) Message(id string, raw json.RawMessage) {
	var req messageRequest
	if err := decodeStrict(raw, &req); err != nil {
		e.violation(EventMessage, id, err.Error())
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.reg.Get(id)
	if !ok {
		return
	}
	sender := e.peers[id]

	text, ok := validate.MessageText(req.Text)
	if !ok {
		e.reject(sender, EventMessage, "message must be 1-500 characters")
		return
	}

	s, ok := e.sessionFor(p, req.Target)
	if !ok {
		e.violation(EventMessage, id, "message for a session the sender is not in")
		return
	}

	censored, changed := e.censor.Apply(text)
	if changed {
		e.mets.Inc(metrics.CensoredMessages)
	}

	msg := chatMessageEvent{
		ID:                uuid.NewString(),
		Text:              censored,
		SenderDisplayName: p.DisplayName,
		Timestamp:         time.Now().UnixMilli(),
	}
	e.mets.Inc(metrics.ChatMessages)
	// A session with no other member silently drops the message.
	for _, other := range s.Others(id) {
		if peer, ok := e.peers[other]; ok {
			peer.Send(EventChatMessage, msg)
		}
	}
}

// Signal forwards an opaque negotiation payload to the other PAIR member.
// The payload is never inspected.
func (e *Engine) Signal(id string, raw json.RawMessage) {
	var req signalRequest
	if err := decodeStrict(raw, &req); err != nil {
		e.violation(EventSignal, id, err.Error())
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.reg.Get(id)
	if !ok {
		return
	}

	s, ok := e.sessionFor(p, req.Target)
	if !ok {
		e.violation(EventSignal, id, "signal with no target session")
		return
	}
	if s.Kind != session.KindPair {
		e.violation(EventSignal, id, "signal aimed at the open floor")
		return
	}

	out := signalEvent{Payload: req.Payload, SenderID: id}
	for _, other := range s.Others(id) {
		if peer, ok := e.peers[other]; ok {
			peer.Send(EventSignal, out)
			e.mets.Inc(metrics.SignalsRelayed)
		}
	}
}

// Leave detaches the participant from the named session and notifies the
// remaining members. The participant stays registered and idle.
func (e *Engine) Leave(id string, raw json.RawMessage) {
	var req leaveRequest
	if err := decodeStrict(raw, &req); err != nil {
		e.violation(EventLeave, id, err.Error())
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.reg.Get(id)
	if !ok {
		return
	}
	if _, ok := e.sessionFor(p, req.Target); !ok {
		e.violation(EventLeave, id, "leave for a session the sender is not in")
		return
	}

	reason := sanitizeReason(req.Reason)
	if reason == ReasonSkip {
		e.mets.Inc(metrics.Skips)
	}
	e.detachLocked(p, reason)
}

// Report snapshots under the lock, persists outside it, and acks the result.
func (e *Engine) Report(id string, raw json.RawMessage) {
	var req reportRequest
	if err := decodeStrict(raw, &req); err != nil {
		e.violation(EventReport, id, err.Error())
		return
	}

	e.mu.Lock()
	p, ok := e.reg.Get(id)
	if !ok {
		e.mu.Unlock()
		return
	}
	sender := e.peers[id]
	if strings.TrimSpace(req.ReportedID) == "" {
		e.mu.Unlock()
		e.reject(sender, EventReport, "reportedId is required")
		return
	}

	rec := report.New(id, req.ReportedID, strings.TrimSpace(req.Reason))
	rec.ReporterDisplayName = p.DisplayName
	if reported, ok := e.reg.Get(req.ReportedID); ok {
		rec.ReportedDisplayName = reported.DisplayName
	}
	e.mu.Unlock()

	err := e.reports.Save(rec)
	if err != nil {
		e.mets.Inc(metrics.ReportSaveFailures)
		e.log.Warn("failed to save report", "reporter", id, "reported", req.ReportedID, "err", err)
	} else {
		e.mets.Inc(metrics.ReportsSaved)
	}
	sender.Send(EventReportAck, reportAckEvent{Success: err == nil})
}

// Stats is the engine snapshot served at /stats.
type Stats struct {
	Participants     int `json:"participants"`
	PairSessions     int `json:"pairSessions"`
	OpenFloorMembers int `json:"openFloorMembers"`
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Stats{
		Participants: e.reg.Count(),
		PairSessions: e.sessions.Len(),
	}
	if floor, ok := e.sessions.Get(session.OpenFloorID); ok {
		st.PairSessions--
		st.OpenFloorMembers = floor.Len()
	}
	return st
}

// detachLocked clears p's session membership and notifies the remaining
// members. An empty reason selects the default for the session kind: skip for
// a pair, left for the open floor. No-op for idle participants.
//
// Detached participants land idle, not waiting; re-entering the match pool
// takes a fresh pairing request.
func (e *Engine) detachLocked(p *registry.Participant, reason string) {
	if p.SessionID == "" {
		return
	}
	sessionID := p.SessionID
	cleared := ""
	notWaiting := false
	e.reg.Update(p.ID, registry.Fields{SessionID: &cleared, Waiting: &notWaiting})

	s, ok := e.sessions.Get(sessionID)
	if !ok {
		return
	}

	switch s.Kind {
	case session.KindPair:
		if reason == "" {
			reason = ReasonSkip
		}
		// Clearing both members destroys the pairing; the session object goes
		// with it.
		for _, other := range s.Others(p.ID) {
			e.reg.Update(other, registry.Fields{SessionID: &cleared, Waiting: &notWaiting})
			if peer, ok := e.peers[other]; ok {
				peer.Send(EventUserLeft, userLeftEvent{Reason: reason, DisplayName: p.DisplayName})
			}
		}
		e.sessions.Remove(s.ID)
	case session.KindOpenFloor:
		if reason == "" {
			reason = ReasonLeft
		}
		e.sessions.Leave(s.ID, p.ID)
		for _, other := range s.Others(p.ID) {
			if peer, ok := e.peers[other]; ok {
				peer.Send(EventUserLeft, userLeftEvent{Reason: reason, DisplayName: p.DisplayName})
			}
		}
	}
}

// sessionFor resolves the target session id against p's actual membership.
func (e *Engine) sessionFor(p *registry.Participant, target string) (*session.Session, bool) {
	if target == "" || p.SessionID != target {
		return nil, false
	}
	s, ok := e.sessions.Get(target)
	if !ok || !s.Has(p.ID) {
		return nil, false
	}
	return s, ok
}

func (e *Engine) broadcastUserCountLocked() {
	count := userCountEvent{Count: e.reg.Count()}
	for _, peer := range e.peers {
		peer.Send(EventUserCount, count)
	}
}

func (e *Engine) reject(sender Sender, event, reason string) {
	e.mets.Inc(metrics.RejectedInputs)
	if sender != nil {
		sender.Send(EventRejected, rejectedEvent{Event: event, Reason: reason})
	}
}

func (e *Engine) violation(event, id, detail string) {
	e.mets.Inc(metrics.ProtocolViolations)
	e.log.Debug("dropping protocol violation", "event", event, "conn", id, "detail", detail)
}

// sanitizeReason trims a client-supplied leave reason and discards anything
// oversized, letting the per-kind default apply.
func sanitizeReason(raw string) string {
	reason := strings.TrimSpace(raw)
	if utf8.RuneCountInString(reason) > maxReasonRunes {
		return ""
	}
	return reason
}
