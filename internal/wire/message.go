package wire

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformed is returned by Parse for any line that cannot be decoded.
// Callers drop such messages silently.
var ErrMalformed = errors.New("wire: malformed message")

// Message is the tagged union of all protocol messages. A parsed message is
// always fully populated; there is no partially-decoded state.
type Message interface {
	// Encode renders the message as a single wire line.
	Encode() string
}

// Hello announces presence on the group channel.
type Hello struct {
	EncounterID uint64
	ClassTag    string
}

// Request asks peers for a state refresh.
type Request struct {
	EncounterID uint64
}

// State reports the sender's current jump count.
type State struct {
	EncounterID uint64
	Count       int
	ClassTag    string
}

// Claim is an arbitration vote naming the sender's locally computed winner.
type Claim struct {
	EncounterID uint64
	WinnerID    string
	WinnerCount int
}

// Posted announces that the named peer has taken the posting lock.
type Posted struct {
	EncounterID uint64
	PosterID    string
}

func (m Hello) Encode() string {
	return fmt.Sprintf("HELLO:%d:%s", m.EncounterID, m.ClassTag)
}

func (m Request) Encode() string {
	return fmt.Sprintf("REQ:%d", m.EncounterID)
}

func (m State) Encode() string {
	return fmt.Sprintf("S:%d:%d:%s", m.EncounterID, m.Count, m.ClassTag)
}

func (m Claim) Encode() string {
	return fmt.Sprintf("C:%d:%s:%d", m.EncounterID, m.WinnerID, m.WinnerCount)
}

func (m Posted) Encode() string {
	return fmt.Sprintf("P:%d:%s", m.EncounterID, m.PosterID)
}

// Parse decodes one wire line into a typed message. Unknown tags, wrong
// field counts, and non-numeric numeric fields all yield ErrMalformed.
func Parse(raw string) (Message, error) {
	fields := strings.Split(raw, ":")
	switch fields[0] {
	case "HELLO":
		if len(fields) != 3 {
			return nil, ErrMalformed
		}
		id, err := parseID(fields[1])
		if err != nil {
			return nil, ErrMalformed
		}
		return Hello{EncounterID: id, ClassTag: fields[2]}, nil

	case "REQ":
		if len(fields) != 2 {
			return nil, ErrMalformed
		}
		id, err := parseID(fields[1])
		if err != nil {
			return nil, ErrMalformed
		}
		return Request{EncounterID: id}, nil

	case "S":
		if len(fields) != 4 {
			return nil, ErrMalformed
		}
		id, err := parseID(fields[1])
		if err != nil {
			return nil, ErrMalformed
		}
		count, err := strconv.Atoi(fields[2])
		if err != nil || count < 0 {
			return nil, ErrMalformed
		}
		return State{EncounterID: id, Count: count, ClassTag: fields[3]}, nil

	case "C":
		if len(fields) != 4 {
			return nil, ErrMalformed
		}
		id, err := parseID(fields[1])
		if err != nil {
			return nil, ErrMalformed
		}
		count, err := strconv.Atoi(fields[3])
		if err != nil || count < 0 || fields[2] == "" {
			return nil, ErrMalformed
		}
		return Claim{EncounterID: id, WinnerID: fields[2], WinnerCount: count}, nil

	case "P":
		if len(fields) != 3 {
			return nil, ErrMalformed
		}
		id, err := parseID(fields[1])
		if err != nil || fields[2] == "" {
			return nil, ErrMalformed
		}
		return Posted{EncounterID: id, PosterID: fields[2]}, nil

	default:
		return nil, ErrMalformed
	}
}

func parseID(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}

// NormalizeIdentity returns the canonical fully-qualified "Name-Realm" form
// of a transport sender field, qualifying bare names with defaultRealm.
func NormalizeIdentity(sender, defaultRealm string) string {
	if sender == "" {
		return sender
	}
	if strings.Contains(sender, "-") {
		return sender
	}
	return sender + "-" + defaultRealm
}
