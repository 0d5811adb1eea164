package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/Muhammd-hafeef-th/Us/internal/metrics"
	"github.com/Muhammd-hafeef-th/Us/internal/moderation"
	"github.com/Muhammd-hafeef-th/Us/internal/report"
	"github.com/Muhammd-hafeef-th/Us/internal/session"
)

type sentEvent struct {
	Event string
	Data  any
}

type fakeSender struct {
	events []sentEvent
}

func (f *fakeSender) Send(event string, data any) bool {
	f.events = append(f.events, sentEvent{Event: event, Data: data})
	return true
}

func (f *fakeSender) named(event string) []sentEvent {
	var out []sentEvent
	for _, e := range f.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeSender) last(t *testing.T, event string) sentEvent {
	t.Helper()
	got := f.named(event)
	if len(got) == 0 {
		t.Fatalf("no %q event sent; got %+v", event, f.events)
	}
	return got[len(got)-1]
}

func (f *fakeSender) reset() {
	f.events = nil
}

type fakeReports struct {
	saved []report.Record
	err   error
}

func (f *fakeReports) Save(rec report.Record) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, rec)
	return nil
}

func newTestEngine(t *testing.T) (*Engine, *fakeReports) {
	t.Helper()
	reports := &fakeReports{}
	censor, err := moderation.New([]string{"jerk"}, '*')
	if err != nil {
		t.Fatalf("moderation.New: %v", err)
	}
	e := NewEngine(Config{
		Log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics: metrics.New(),
		Censor:  censor,
		Reports: reports,
	})
	return e, reports
}

func connect(e *Engine, id string) *fakeSender {
	s := &fakeSender{}
	e.Connect(id, s)
	return s
}

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func joinPairing(t *testing.T, e *Engine, id string, interests ...string) {
	t.Helper()
	e.Join(id, raw(t, map[string]any{"target": nil, "interests": interests}))
}

func joinOpenFloor(t *testing.T, e *Engine, id string) {
	t.Helper()
	e.Join(id, raw(t, map[string]any{"target": session.OpenFloorID}))
}

// pairUp joins a and b into a pairing and returns the session id.
func pairUp(t *testing.T, e *Engine, a, b string, sa, sb *fakeSender) string {
	t.Helper()
	joinPairing(t, e, a, "shared-interest")
	joinPairing(t, e, b, "shared-interest")
	found := sb.last(t, EventMatchFound).Data.(matchFoundEvent)
	sa.reset()
	sb.reset()
	return found.SessionID
}

func sessionIDOf(t *testing.T, e *Engine, id string) string {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.reg.Get(id)
	if !ok {
		t.Fatalf("participant %q not registered", id)
	}
	return p.SessionID
}

func TestConnectBroadcastsUserCount(t *testing.T) {
	e, _ := newTestEngine(t)

	sa := connect(e, "a")
	if got := sa.last(t, EventUserCount).Data.(userCountEvent); got.Count != 1 {
		t.Fatalf("count after first connect = %d, want 1", got.Count)
	}

	sb := connect(e, "b")
	if got := sa.last(t, EventUserCount).Data.(userCountEvent); got.Count != 2 {
		t.Fatalf("a's count after second connect = %d, want 2", got.Count)
	}
	if got := sb.last(t, EventUserCount).Data.(userCountEvent); got.Count != 2 {
		t.Fatalf("b's count = %d, want 2", got.Count)
	}

	e.Disconnect("b")
	if got := sa.last(t, EventUserCount).Data.(userCountEvent); got.Count != 1 {
		t.Fatalf("count after disconnect = %d, want 1", got.Count)
	}
}

func TestInterestMatchRequesterIsInitiator(t *testing.T) {
	e, _ := newTestEngine(t)
	sa := connect(e, "a")
	sb := connect(e, "b")

	// A requests first with nobody else waiting: no match, A waits.
	joinPairing(t, e, "a", "music")
	if len(sa.named(EventWaiting)) != 1 {
		t.Fatalf("a should be waiting, events: %+v", sa.events)
	}
	if len(sa.named(EventMatchFound)) != 0 {
		t.Fatalf("a should not be matched yet")
	}

	// B's request finds A via the interest pass. B triggered the match, so B
	// is the initiator.
	joinPairing(t, e, "b", "music", "art")
	mfA := sa.last(t, EventMatchFound).Data.(matchFoundEvent)
	mfB := sb.last(t, EventMatchFound).Data.(matchFoundEvent)

	if !mfB.Initiator || mfA.Initiator {
		t.Fatalf("initiator should be the requester b: a=%v b=%v", mfA.Initiator, mfB.Initiator)
	}
	if mfA.SessionID == "" || mfA.SessionID != mfB.SessionID {
		t.Fatalf("session ids disagree: %q vs %q", mfA.SessionID, mfB.SessionID)
	}
	if len(mfB.Interests) != 1 || mfB.Interests[0] != "music" {
		t.Fatalf("shared interests = %v, want [music]", mfB.Interests)
	}

	if sessionIDOf(t, e, "a") != mfA.SessionID || sessionIDOf(t, e, "b") != mfA.SessionID {
		t.Fatalf("registry and session membership disagree")
	}
}

func TestFallbackMatchIgnoresInterests(t *testing.T) {
	e, _ := newTestEngine(t)
	sx := connect(e, "x")
	sy := connect(e, "y")
	sz := connect(e, "z")

	// y asks first and waits. x's interests are disjoint from y's, so the
	// interest pass yields nothing and the fallback pass pairs them anyway.
	// z never asked and stays out of it.
	joinPairing(t, e, "y", "beta")
	joinPairing(t, e, "x", "alpha")

	if len(sy.named(EventMatchFound)) != 1 || len(sx.named(EventMatchFound)) != 1 {
		t.Fatalf("x and y should be paired: x=%+v y=%+v", sx.events, sy.events)
	}
	if len(sz.named(EventMatchFound)) != 0 {
		t.Fatalf("z should not be matched")
	}
	mfY := sy.last(t, EventMatchFound).Data.(matchFoundEvent)
	if mfY.Initiator {
		t.Fatalf("found counterpart must not be the initiator")
	}
	if len(mfY.Interests) != 0 {
		t.Fatalf("fallback match should carry no shared interests, got %v", mfY.Interests)
	}
}

func TestConnectedParticipantIsNotMatchedWithoutRequest(t *testing.T) {
	e, _ := newTestEngine(t)
	sa := connect(e, "a")
	sb := connect(e, "b")

	// b is connected but never asked for a pairing, so a's request must wait
	// rather than pull b in.
	joinPairing(t, e, "a")
	if len(sa.named(EventWaiting)) != 1 {
		t.Fatalf("a should be waiting, events: %+v", sa.events)
	}
	if len(sa.named(EventMatchFound)) != 0 || len(sb.named(EventMatchFound)) != 0 {
		t.Fatalf("nobody should be matched: a=%+v b=%+v", sa.events, sb.events)
	}
	if sessionIDOf(t, e, "a") != "" || sessionIDOf(t, e, "b") != "" {
		t.Fatalf("both should be sessionless")
	}
}

func TestOpenFloorJoinWithdrawsPairingRequest(t *testing.T) {
	e, _ := newTestEngine(t)
	connect(e, "a")
	sb := connect(e, "b")

	// a waits, then moves to the open floor and leaves it again: the stale
	// pairing request must not resurrect.
	joinPairing(t, e, "a")
	joinOpenFloor(t, e, "a")
	e.Leave("a", raw(t, map[string]any{"target": session.OpenFloorID}))

	joinPairing(t, e, "b")
	if len(sb.named(EventWaiting)) != 1 {
		t.Fatalf("b should be waiting, events: %+v", sb.events)
	}
	if len(sb.named(EventMatchFound)) != 0 {
		t.Fatalf("b must not be matched to a withdrawn request")
	}
}

func TestSkipClearsBothSidesAndAllowsReentry(t *testing.T) {
	e, _ := newTestEngine(t)
	sa := connect(e, "a")
	sb := connect(e, "b")
	sid := pairUp(t, e, "a", "b", sa, sb)

	e.Leave("a", raw(t, map[string]any{"target": sid, "reason": ReasonSkip}))

	left := sb.last(t, EventUserLeft).Data.(userLeftEvent)
	if left.Reason != ReasonSkip {
		t.Fatalf("reason = %q, want skip", left.Reason)
	}
	if sessionIDOf(t, e, "a") != "" || sessionIDOf(t, e, "b") != "" {
		t.Fatalf("both sides should be idle after skip")
	}

	// A re-enters immediately. A must never match itself, and b has not asked
	// again, so a waits.
	sa.reset()
	joinPairing(t, e, "a")
	if len(sa.named(EventWaiting)) != 1 || len(sa.named(EventMatchFound)) != 0 {
		t.Fatalf("a should be waiting alone, events: %+v", sa.events)
	}

	// b re-enters and pairs with a under a fresh session id.
	sb.reset()
	joinPairing(t, e, "b")
	mf := sb.last(t, EventMatchFound).Data.(matchFoundEvent)
	if mf.SessionID == sid {
		t.Fatalf("re-pairing reused stale session id %q", sid)
	}
	if sessionIDOf(t, e, "a") != mf.SessionID {
		t.Fatalf("a and b should share the new session")
	}
}

func TestPeerDisconnectEmitsExactlyOneUserLeft(t *testing.T) {
	e, _ := newTestEngine(t)
	sa := connect(e, "a")
	sb := connect(e, "b")
	pairUp(t, e, "a", "b", sa, sb)

	e.Disconnect("a")

	lefts := sb.named(EventUserLeft)
	if len(lefts) != 1 {
		t.Fatalf("got %d user-left events, want exactly 1", len(lefts))
	}
	if got := lefts[0].Data.(userLeftEvent).Reason; got != ReasonDisconnected {
		t.Fatalf("reason = %q, want disconnected", got)
	}
	if sessionIDOf(t, e, "b") != "" {
		t.Fatalf("b should be idle after peer disconnect")
	}
	if _, ok := e.reg.Get("a"); ok {
		t.Fatalf("a should be unregistered")
	}
}

func TestChatRelayAndCensor(t *testing.T) {
	e, _ := newTestEngine(t)
	sa := connect(e, "a")
	sb := connect(e, "b")
	sid := pairUp(t, e, "a", "b", sa, sb)

	e.Message("a", raw(t, map[string]any{"target": sid, "text": "hi you jerk"}))

	if len(sa.named(EventChatMessage)) != 0 {
		t.Fatalf("sender must not receive its own chat message")
	}
	msg := sb.last(t, EventChatMessage).Data.(chatMessageEvent)
	if msg.Text != "hi you ****" {
		t.Fatalf("text = %q, want censored", msg.Text)
	}
	if msg.ID == "" || msg.Timestamp == 0 {
		t.Fatalf("chat message missing id/timestamp: %+v", msg)
	}
	if msg.SenderDisplayName == "" {
		t.Fatalf("chat message missing sender display name")
	}
}

func TestOversizedMessageIsRejected(t *testing.T) {
	e, _ := newTestEngine(t)
	sa := connect(e, "a")
	sb := connect(e, "b")
	sid := pairUp(t, e, "a", "b", sa, sb)

	e.Message("a", raw(t, map[string]any{"target": sid, "text": strings.Repeat("x", 501)}))

	rej := sa.last(t, EventRejected).Data.(rejectedEvent)
	if rej.Event != EventMessage {
		t.Fatalf("rejected.event = %q, want message", rej.Event)
	}
	if len(sb.named(EventChatMessage)) != 0 {
		t.Fatalf("rejected message must not be relayed")
	}
}

func TestEleventhInterestIsDroppedNotFatal(t *testing.T) {
	e, _ := newTestEngine(t)
	sa := connect(e, "a")

	interests := make([]string, 11)
	for i := range interests {
		interests[i] = fmt.Sprintf("interest-%d", i)
	}
	joinPairing(t, e, "a", interests...)

	// The request still went through: a is waiting, not rejected.
	if len(sa.named(EventRejected)) != 0 {
		t.Fatalf("interest overflow must not reject the request")
	}
	if len(sa.named(EventWaiting)) != 1 {
		t.Fatalf("a should be waiting")
	}

	e.mu.Lock()
	p, _ := e.reg.Get("a")
	n := len(p.Interests)
	e.mu.Unlock()
	if n != 10 {
		t.Fatalf("stored %d interests, want 10", n)
	}
}

func TestShortDisplayNameIsRejected(t *testing.T) {
	e, _ := newTestEngine(t)
	sa := connect(e, "a")

	e.Join("a", raw(t, map[string]any{"target": nil, "displayName": "ab"}))
	if len(sa.named(EventRejected)) != 1 {
		t.Fatalf("2-char display name should be rejected")
	}
	if len(sa.named(EventWaiting)) != 0 {
		t.Fatalf("rejected join must not proceed to matching")
	}

	e.Join("a", raw(t, map[string]any{"target": nil, "displayName": "abc"}))
	if len(sa.named(EventWaiting)) != 1 {
		t.Fatalf("3-char display name should be accepted")
	}
	e.mu.Lock()
	p, _ := e.reg.Get("a")
	name := p.DisplayName
	e.mu.Unlock()
	if name != "abc" {
		t.Fatalf("display name = %q, want abc", name)
	}
}

func TestSignalRelayIsOpaque(t *testing.T) {
	e, _ := newTestEngine(t)
	sa := connect(e, "a")
	sb := connect(e, "b")
	sid := pairUp(t, e, "a", "b", sa, sb)

	payload := `{"type":"offer","sdp":"v=0 nonsense the server must not touch"}`
	e.Signal("a", raw(t, map[string]any{"target": sid, "payload": json.RawMessage(payload)}))

	sig := sb.last(t, EventSignal).Data.(signalEvent)
	if string(sig.Payload) != payload {
		t.Fatalf("payload was altered: %s", sig.Payload)
	}
	if sig.SenderID != "a" {
		t.Fatalf("senderId = %q, want a", sig.SenderID)
	}
	if len(sa.named(EventSignal)) != 0 {
		t.Fatalf("signal must not echo to the sender")
	}
}

func TestSignalToOpenFloorIsAViolation(t *testing.T) {
	e, _ := newTestEngine(t)
	connect(e, "a")
	sb := connect(e, "b")
	joinOpenFloor(t, e, "a")
	joinOpenFloor(t, e, "b")

	before := e.mets.Get(metrics.ProtocolViolations)
	e.Signal("a", raw(t, map[string]any{"target": session.OpenFloorID, "payload": json.RawMessage(`{}`)}))

	if e.mets.Get(metrics.ProtocolViolations) != before+1 {
		t.Fatalf("open-floor signal should count as a protocol violation")
	}
	if len(sb.named(EventSignal)) != 0 {
		t.Fatalf("open-floor signal must not be relayed")
	}
}

func TestSignalWithoutSessionIsDropped(t *testing.T) {
	e, _ := newTestEngine(t)
	connect(e, "a")

	before := e.mets.Get(metrics.ProtocolViolations)
	e.Signal("a", raw(t, map[string]any{"target": "nowhere", "payload": json.RawMessage(`{}`)}))
	if e.mets.Get(metrics.ProtocolViolations) != before+1 {
		t.Fatalf("signal with no session should be a violation")
	}
}

func TestOpenFloorJoinMessageAndLeave(t *testing.T) {
	e, _ := newTestEngine(t)
	sa := connect(e, "a")
	sb := connect(e, "b")
	sc := connect(e, "c")

	joinOpenFloor(t, e, "a")
	joinOpenFloor(t, e, "b")
	if len(sa.named(EventUserJoined)) != 1 {
		t.Fatalf("a should see b join")
	}
	joinOpenFloor(t, e, "c")
	if len(sa.named(EventUserJoined)) != 2 || len(sb.named(EventUserJoined)) != 1 {
		t.Fatalf("join notices wrong: a=%d b=%d", len(sa.named(EventUserJoined)), len(sb.named(EventUserJoined)))
	}

	e.Message("a", raw(t, map[string]any{"target": session.OpenFloorID, "text": "hello floor"}))
	if len(sb.named(EventChatMessage)) != 1 || len(sc.named(EventChatMessage)) != 1 {
		t.Fatalf("open-floor chat should reach all other members")
	}
	if len(sa.named(EventChatMessage)) != 0 {
		t.Fatalf("open-floor chat must not echo to the sender")
	}

	e.Leave("b", raw(t, map[string]any{"target": session.OpenFloorID}))
	if got := sa.last(t, EventUserLeft).Data.(userLeftEvent).Reason; got != ReasonLeft {
		t.Fatalf("open-floor leave reason = %q, want left", got)
	}

	e.Disconnect("c")
	if got := sa.last(t, EventUserLeft).Data.(userLeftEvent).Reason; got != ReasonDisconnected {
		t.Fatalf("open-floor disconnect reason = %q, want disconnected", got)
	}
}

func TestPairingRequestDetachesFromOpenFloorFirst(t *testing.T) {
	e, _ := newTestEngine(t)
	sa := connect(e, "a")
	sb := connect(e, "b")
	connect(e, "c")

	joinPairing(t, e, "c")
	joinOpenFloor(t, e, "a")
	joinOpenFloor(t, e, "b")

	// b asks for a pairing while on the floor: the floor is notified and b is
	// paired with the waiting candidate, never holding two sessions at once.
	joinPairing(t, e, "b")
	if got := sa.last(t, EventUserLeft).Data.(userLeftEvent).Reason; got != ReasonLeft {
		t.Fatalf("floor should see b leave, got %q", got)
	}

	mf := sb.last(t, EventMatchFound).Data.(matchFoundEvent)
	if sessionIDOf(t, e, "b") != mf.SessionID || sessionIDOf(t, e, "c") != mf.SessionID {
		t.Fatalf("b should be paired with c")
	}
	// a stays on the floor and is not a match candidate.
	if sessionIDOf(t, e, "a") != session.OpenFloorID {
		t.Fatalf("a should still be on the open floor")
	}
}

func TestNewPairingRequestWhilePairedSkipsCurrentPeer(t *testing.T) {
	e, _ := newTestEngine(t)
	sa := connect(e, "a")
	sb := connect(e, "b")
	connect(e, "c")
	sid := pairUp(t, e, "a", "b", sa, sb)
	// c asks while a and b are paired and waits.
	joinPairing(t, e, "c")

	joinPairing(t, e, "a")

	left := sb.last(t, EventUserLeft).Data.(userLeftEvent)
	if left.Reason != ReasonSkip {
		t.Fatalf("peer should see a skip, got %q", left.Reason)
	}
	// The old session is gone; a got a fresh id when matched with the waiting
	// candidate c.
	newSID := sessionIDOf(t, e, "a")
	if newSID == sid || newSID == "" {
		t.Fatalf("new session id %q should differ from stale %q", newSID, sid)
	}
	if sessionIDOf(t, e, "c") != newSID {
		t.Fatalf("a should be paired with c")
	}
	// The skipped peer is idle, not auto-requeued.
	if sessionIDOf(t, e, "b") != "" {
		t.Fatalf("b should be idle")
	}
}

func TestReportAckSuccessAndFailure(t *testing.T) {
	e, reports := newTestEngine(t)
	sa := connect(e, "a")
	connect(e, "b")

	e.Report("a", raw(t, map[string]any{"reportedId": "b", "reason": "abusive"}))
	if got := sa.last(t, EventReportAck).Data.(reportAckEvent); !got.Success {
		t.Fatalf("save succeeded but ack reports failure")
	}
	if len(reports.saved) != 1 {
		t.Fatalf("saved %d records, want 1", len(reports.saved))
	}
	rec := reports.saved[0]
	if rec.ReporterID != "a" || rec.ReportedID != "b" || rec.Reason != "abusive" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.ReporterDisplayName == "" || rec.ReportedDisplayName == "" {
		t.Fatalf("record should carry display name snapshots: %+v", rec)
	}

	reports.err = errors.New("disk on fire")
	e.Report("a", raw(t, map[string]any{"reportedId": "b"}))
	if got := sa.last(t, EventReportAck).Data.(reportAckEvent); got.Success {
		t.Fatalf("ack should report failure")
	}
}

func TestReportMissingReportedIDIsRejected(t *testing.T) {
	e, reports := newTestEngine(t)
	sa := connect(e, "a")

	e.Report("a", raw(t, map[string]any{"reportedId": "  "}))
	if len(sa.named(EventRejected)) != 1 {
		t.Fatalf("report without reportedId should be rejected")
	}
	if len(reports.saved) != 0 {
		t.Fatalf("nothing should be saved")
	}
}

func TestEventsAfterDisconnectAreNoOps(t *testing.T) {
	e, _ := newTestEngine(t)
	sa := connect(e, "a")
	sb := connect(e, "b")
	sid := pairUp(t, e, "a", "b", sa, sb)

	e.Disconnect("a")
	// Events racing a just-processed disconnect must not panic or mutate.
	e.Message("a", raw(t, map[string]any{"target": sid, "text": "ghost"}))
	e.Signal("a", raw(t, map[string]any{"target": sid, "payload": json.RawMessage(`{}`)}))
	e.Leave("a", raw(t, map[string]any{"target": sid}))
	e.Disconnect("a")

	if len(sb.named(EventChatMessage)) != 0 {
		t.Fatalf("ghost events must not relay")
	}
}

func TestOversizedLeaveReasonFallsBackToDefault(t *testing.T) {
	e, _ := newTestEngine(t)
	sa := connect(e, "a")
	sb := connect(e, "b")
	sid := pairUp(t, e, "a", "b", sa, sb)

	e.Leave("a", raw(t, map[string]any{"target": sid, "reason": strings.Repeat("r", 33)}))
	if got := sb.last(t, EventUserLeft).Data.(userLeftEvent).Reason; got != ReasonSkip {
		t.Fatalf("oversized reason should fall back to skip, got %q", got)
	}
}

func TestStatsSnapshot(t *testing.T) {
	e, _ := newTestEngine(t)
	sa := connect(e, "a")
	sb := connect(e, "b")
	connect(e, "c")
	pairUp(t, e, "a", "b", sa, sb)
	joinOpenFloor(t, e, "c")

	st := e.Stats()
	if st.Participants != 3 || st.PairSessions != 1 || st.OpenFloorMembers != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestUnknownJoinTargetMutatesNothing(t *testing.T) {
	e, _ := newTestEngine(t)
	connect(e, "a")

	before := e.mets.Get(metrics.ProtocolViolations)
	e.Join("a", raw(t, map[string]any{
		"target":      "somewhere-else",
		"interests":   []string{"music"},
		"displayName": "sneaky-name",
	}))

	if got := e.mets.Get(metrics.ProtocolViolations); got != before+1 {
		t.Fatalf("ProtocolViolations = %d, want %d", got, before+1)
	}
	e.mu.Lock()
	p, _ := e.reg.Get("a")
	interests, name, waiting := p.Interests, p.DisplayName, p.Waiting
	e.mu.Unlock()
	if len(interests) != 0 || name == "sneaky-name" || waiting {
		t.Fatalf("violating join must not mutate the participant: %+v", p)
	}
}

func TestMalformedPayloadsAreViolations(t *testing.T) {
	e, _ := newTestEngine(t)
	connect(e, "a")

	before := e.mets.Get(metrics.ProtocolViolations)
	e.Join("a", json.RawMessage(`{"target": null, "bogus": 1}`))
	e.Message("a", json.RawMessage(`not json`))
	e.Leave("a", json.RawMessage(`[]`))

	if got := e.mets.Get(metrics.ProtocolViolations); got != before+3 {
		t.Fatalf("ProtocolViolations = %d, want %d", got, before+3)
	}
}
