package controlplane

import (
	"strings"

	"github.com/netsys-lab/rftp/shared"
	"github.com/scionproto/scion/go/lib/serrors"
)

// Announcement is sent ahead of a transfer (BEGIN) and after the last unit
// has been queued (DONE).
type Announcement struct {
	Verb      string
	SessionID uint64
	Units     uint64
	UnitSize  uint32
}

func NewBeginAnnouncement(sessionID uint64, units uint64, unitSize uint32) Announcement {
	return Announcement{Verb: shared.MSG_BEGIN, SessionID: sessionID, Units: units, UnitSize: unitSize}
}

func NewDoneAnnouncement(sessionID uint64, units uint64) Announcement {
	return Announcement{Verb: shared.MSG_DONE, SessionID: sessionID, Units: units}
}

func (a Announcement) Encode() string {
	if a.Verb == shared.MSG_BEGIN {
		return shared.FormatMessage(a.Verb, a.SessionID, a.Units, a.UnitSize)
	}
	return shared.FormatMessage(a.Verb, a.SessionID, a.Units)
}

// DecodeAnnouncement parses a BEGIN or DONE message.
func DecodeAnnouncement(msg shared.Message) (Announcement, error) {
	a := Announcement{Verb: msg.Verb}
	want := 2
	if msg.Verb == shared.MSG_BEGIN {
		want = 3
	} else if msg.Verb != shared.MSG_DONE {
		return a, serrors.WrapStr("decoding announcement", shared.ErrProtocolViolation,
			"verb", msg.Verb)
	}
	if len(msg.Args) != want {
		return a, serrors.WrapStr("decoding announcement", shared.ErrProtocolViolation,
			"line", msg.Raw)
	}

	var ok bool
	if a.SessionID, ok = msg.Uint(0, 64); !ok {
		return a, serrors.WrapStr("invalid session", shared.ErrProtocolViolation, "line", msg.Raw)
	}
	if a.Units, ok = msg.Uint(1, 64); !ok {
		return a, serrors.WrapStr("invalid unit count", shared.ErrProtocolViolation, "line", msg.Raw)
	}
	if want == 3 {
		unitSize, ok := msg.Uint(2, 32)
		if !ok {
			return a, serrors.WrapStr("invalid unit size", shared.ErrProtocolViolation, "line", msg.Raw)
		}
		a.UnitSize = uint32(unitSize)
	}
	return a, nil
}

// ErrorMessage keeps reason on a single line.
func ErrorMessage(reason string) string {
	reason = strings.Join(strings.Fields(reason), " ")
	return shared.FormatMessage(shared.MSG_ERROR, reason)
}

func SessionMessage(id uint64) string {
	return shared.FormatMessage(shared.MSG_SESSION, id)
}
