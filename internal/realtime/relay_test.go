package realtime

import (
	"errors"
	"fmt"
	"testing"

	"github.com/proctorhub/session-service/internal/models"
)

func TestRelay_DeliversToPeer(t *testing.T) {
	reg := NewRegistry(testLogger())
	relay := NewRelay(reg, testLogger())

	candidate := &fakeConn{}
	interviewer := &fakeConn{}
	reg.Join("sess-1", models.RoleCandidate, candidate)
	reg.Join("sess-1", models.RoleInterviewer, interviewer)
	candidate.sent = nil // drop the join notification

	if err := relay.Relay("sess-1", candidate, MsgOffer, map[string]string{"sdp": "v=0"}); err != nil {
		t.Fatalf("Relay() error = %v", err)
	}

	got := interviewer.envelopes()
	if len(got) != 1 || got[0].Type != MsgOffer {
		t.Fatalf("interviewer received %v, want one offer", got)
	}
	// The sender never receives its own message back.
	if len(candidate.envelopes()) != 0 {
		t.Error("relay echoed the message to its sender")
	}
}

func TestRelay_PreservesSenderOrdering(t *testing.T) {
	reg := NewRegistry(testLogger())
	relay := NewRelay(reg, testLogger())

	candidate := &fakeConn{}
	interviewer := &fakeConn{}
	reg.Join("sess-1", models.RoleCandidate, candidate)
	reg.Join("sess-1", models.RoleInterviewer, interviewer)
	candidate.sent = nil

	for i := 0; i < 10; i++ {
		payload := map[string]int{"seq": i}
		if err := relay.Relay("sess-1", candidate, MsgChatMessage, payload); err != nil {
			t.Fatalf("Relay() error = %v", err)
		}
	}

	got := interviewer.envelopes()
	if len(got) != 10 {
		t.Fatalf("received %d messages, want 10", len(got))
	}
	for i, env := range got {
		seq := env.Payload.(map[string]int)["seq"]
		if seq != i {
			t.Fatalf("message %d carries seq %d, ordering broken", i, seq)
		}
	}
}

func TestRelay_EmptyRoomIsNoOp(t *testing.T) {
	reg := NewRegistry(testLogger())
	relay := NewRelay(reg, testLogger())

	sender := &fakeConn{}
	reg.Join("sess-1", models.RoleCandidate, sender)

	// Alone in the room: nothing delivered, no error.
	if err := relay.Relay("sess-1", sender, MsgFocusStatus, nil); err != nil {
		t.Fatalf("Relay() to empty room error = %v", err)
	}

	// Unknown session behaves the same.
	if err := relay.Relay("sess-unknown", sender, MsgFocusStatus, nil); err != nil {
		t.Fatalf("Relay() to unknown session error = %v", err)
	}
}

func TestRelay_BlankSessionIDIsRejected(t *testing.T) {
	reg := NewRegistry(testLogger())
	relay := NewRelay(reg, testLogger())

	for _, sessionID := range []string{"", "   "} {
		err := relay.Relay(sessionID, &fakeConn{}, MsgOffer, nil)
		if !errors.Is(err, ErrInvalidSessionID) {
			t.Errorf("Relay(%q) error = %v, want ErrInvalidSessionID", sessionID, err)
		}
	}
}

func TestRelay_DeadPeerDoesNotFailTheRelay(t *testing.T) {
	reg := NewRegistry(testLogger())
	relay := NewRelay(reg, testLogger())

	candidate := &fakeConn{}
	interviewer := &fakeConn{}
	reg.Join("sess-1", models.RoleCandidate, candidate)
	reg.Join("sess-1", models.RoleInterviewer, interviewer)
	interviewer.Close()

	if err := relay.Relay("sess-1", candidate, MsgICECandidate, nil); err != nil {
		t.Fatalf("Relay() with dead peer error = %v, want nil (best effort)", err)
	}
}

func TestRelay_NotifyInterviewer(t *testing.T) {
	reg := NewRegistry(testLogger())
	relay := NewRelay(reg, testLogger())

	candidate := &fakeConn{}
	interviewer := &fakeConn{}
	reg.Join("sess-1", models.RoleCandidate, candidate)

	// No interviewer connected: silent no-op.
	relay.NotifyInterviewer("sess-1", MsgRealtimeViolation, nil)

	reg.Join("sess-1", models.RoleInterviewer, interviewer)
	candidate.sent = nil

	relay.NotifyInterviewer("sess-1", MsgRealtimeViolation, map[string]string{"type": "phone_detected"})
	relay.NotifyInterviewer("sess-1", MsgScoreUpdated, map[string]int{"integrity_score": 90})

	got := interviewer.types()
	want := []string{MsgRealtimeViolation, MsgScoreUpdated}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("interviewer notifications = %v, want %v", got, want)
	}

	// The candidate never sees live violation detail.
	if len(candidate.envelopes()) != 0 {
		t.Errorf("candidate received %v", candidate.types())
	}
}

func TestIsRelayable(t *testing.T) {
	relayable := []string{MsgOffer, MsgAnswer, MsgICECandidate, MsgChatMessage,
		MsgFocusStatus, MsgObjectDetection, MsgCandidateReady, MsgEndSession}
	for _, mt := range relayable {
		if !IsRelayable(mt) {
			t.Errorf("IsRelayable(%q) = false", mt)
		}
	}

	// Server-originated and control types may not be forged by a peer.
	for _, mt := range []string{MsgRealtimeViolation, MsgScoreUpdated, "join-room", "made-up"} {
		if IsRelayable(mt) {
			t.Errorf("IsRelayable(%q) = true", mt)
		}
	}
}
