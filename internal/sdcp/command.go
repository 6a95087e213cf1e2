package sdcp

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Command is a request code carried in Data.Cmd.
type Command int

const (
	CmdStatus              Command = 0
	CmdAttributes          Command = 1
	CmdStartPrint          Command = 128
	CmdPausePrint          Command = 129
	CmdStopPrint           Command = 130
	CmdContinuePrint       Command = 131
	CmdStopFeedingMaterial Command = 132
)

func (c Command) String() string {
	switch c {
	case CmdStatus:
		return "status"
	case CmdAttributes:
		return "attributes"
	case CmdStartPrint:
		return "start_print"
	case CmdPausePrint:
		return "pause_print"
	case CmdStopPrint:
		return "stop_print"
	case CmdContinuePrint:
		return "continue_print"
	case CmdStopFeedingMaterial:
		return "stop_feeding_material"
	}
	return fmt.Sprintf("cmd(%d)", int(c))
}

// fromClient identifies this supervisor as the request origin. The printer's
// own web UI uses 1.
const fromClient = 2

// KeepAlive is the plain text frame sent to keep the printer connection open.
const KeepAlive = "ping"

// Request is the outbound command envelope.
type Request struct {
	ID   string      `json:"Id"`
	Data RequestData `json:"Data"`
}

// RequestData is the body of a Request.
type RequestData struct {
	Cmd         Command  `json:"Cmd"`
	Data        struct{} `json:"Data"`
	RequestID   string   `json:"RequestID"`
	MainboardID string   `json:"MainboardID"`
	TimeStamp   int64    `json:"TimeStamp"`
	From        int      `json:"From"`
}

// NewRequestID returns a fresh 32 character hex identifier.
func NewRequestID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewRequest builds the envelope for cmd. The same id is used for Id and
// RequestID so acknowledgments can be matched on either.
func NewRequest(cmd Command, requestID, mainboardID string, at time.Time) Request {
	return Request{
		ID: requestID,
		Data: RequestData{
			Cmd:         cmd,
			RequestID:   requestID,
			MainboardID: mainboardID,
			TimeStamp:   at.Unix(),
			From:        fromClient,
		},
	}
}

// Encode renders the request as the text frame sent to the printer.
func (r Request) Encode() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	return string(data), nil
}
