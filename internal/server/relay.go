package server

import (
	"sync/atomic"

	"github.com/meetscribe/meeting-stream-service/internal/protocol"
	"github.com/meetscribe/meeting-stream-service/internal/session"
)

// NotifierRelay breaks the construction cycle between the session
// manager and the gateway: the manager is built against the relay, and
// the gateway is bound once it exists. Notifications before Bind are
// dropped.
type NotifierRelay struct {
	target atomic.Pointer[Gateway]
}

// NewNotifierRelay creates an unbound relay
func NewNotifierRelay() *NotifierRelay {
	return &NotifierRelay{}
}

// Bind sets the gateway that receives all future notifications
func (r *NotifierRelay) Bind(g *Gateway) {
	r.target.Store(g)
}

var _ session.Notifier = (*NotifierRelay)(nil)

func (r *NotifierRelay) NotifyTranscription(meetingID string, result protocol.TranscriptionResult) {
	if g := r.target.Load(); g != nil {
		g.NotifyTranscription(meetingID, result)
	}
}

func (r *NotifierRelay) NotifyMeetingUpdate(meetingID string, update protocol.MeetingUpdate) {
	if g := r.target.Load(); g != nil {
		g.NotifyMeetingUpdate(meetingID, update)
	}
}

func (r *NotifierRelay) NotifyProcessingStatus(meetingID string, status protocol.ProcessingStatus) {
	if g := r.target.Load(); g != nil {
		g.NotifyProcessingStatus(meetingID, status)
	}
}

func (r *NotifierRelay) NotifyProcessingComplete(meetingID string, complete protocol.ProcessingComplete) {
	if g := r.target.Load(); g != nil {
		g.NotifyProcessingComplete(meetingID, complete)
	}
}
