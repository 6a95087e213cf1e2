package sdcp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind discriminates decoded inbound frames.
type Kind int

const (
	KindUnrecognized Kind = iota
	KindAck
	KindStatus
)

func (k Kind) String() string {
	switch k {
	case KindAck:
		return "ack"
	case KindStatus:
		return "status"
	}
	return "unrecognized"
}

// Message is one decoded inbound frame. Exactly one of Ack and Status is set
// when Kind is KindAck or KindStatus respectively.
type Message struct {
	Kind   Kind
	Ack    *Ack
	Status *Status
}

// Ack is a command acknowledgment.
type Ack struct {
	Cmd         Command
	Ack         int
	RequestID   string
	MainboardID string
}

// Status is a status push. Nil fields were absent from the frame and must
// leave the mirrored state untouched.
type Status struct {
	MachineStatuses *MachineStatusSet
	Z               *float64
	PrintInfo       *PrintInfo
	MainboardID     string
}

// PrintInfo mirrors Status.PrintInfo.
type PrintInfo struct {
	Status        *PrintStatus
	CurrentLayer  *int
	TotalLayer    *int
	Progress      *int
	CurrentTicks  *int
	TotalTicks    *int
	PrintSpeedPct *int
}

// number accepts any JSON number and truncates it to an int. Some firmware
// revisions report counters as floats.
type number int

func (n *number) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("invalid number %s", b)
	}
	*n = number(f)
	return nil
}

type frame struct {
	ID          json.RawMessage `json:"Id"`
	Data        json.RawMessage `json:"Data"`
	Status      json.RawMessage `json:"Status"`
	MainboardID string          `json:"MainboardID"`
}

type ackBody struct {
	Cmd  *number `json:"Cmd"`
	Data struct {
		Ack number `json:"Ack"`
	} `json:"Data"`
	RequestID   *string `json:"RequestID"`
	MainboardID string  `json:"MainboardID"`
}

type statusBody struct {
	CurrentStatus *[]number      `json:"CurrentStatus"`
	CurrenCoord   *string        `json:"CurrenCoord"`
	PrintInfo     *printInfoBody `json:"PrintInfo"`
}

type printInfoBody struct {
	Status        *number `json:"Status"`
	CurrentLayer  *number `json:"CurrentLayer"`
	TotalLayer    *number `json:"TotalLayer"`
	Progress      *number `json:"Progress"`
	CurrentTicks  *number `json:"CurrentTicks"`
	TotalTicks    *number `json:"TotalTicks"`
	PrintSpeedPct *number `json:"PrintSpeedPct"`
}

// Decode parses one inbound text frame. A frame carrying both Id and Data is
// an acknowledgment, otherwise a frame carrying Status is a status push.
// Anything else decodes to KindUnrecognized without error.
func Decode(payload []byte) (Message, error) {
	var f frame
	if err := json.Unmarshal(payload, &f); err != nil {
		return Message{}, fmt.Errorf("decode frame: %w", err)
	}

	switch {
	case len(f.ID) > 0 && len(f.Data) > 0:
		return decodeAck(f.Data)
	case len(f.Status) > 0:
		return decodeStatus(f.Status, f.MainboardID)
	}
	return Message{Kind: KindUnrecognized}, nil
}

func decodeAck(raw json.RawMessage) (Message, error) {
	var body ackBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return Message{}, fmt.Errorf("decode ack: %w", err)
	}
	if body.Cmd == nil || body.RequestID == nil {
		return Message{Kind: KindUnrecognized}, nil
	}
	return Message{
		Kind: KindAck,
		Ack: &Ack{
			Cmd:         Command(*body.Cmd),
			Ack:         int(body.Data.Ack),
			RequestID:   *body.RequestID,
			MainboardID: body.MainboardID,
		},
	}, nil
}

func decodeStatus(raw json.RawMessage, mainboardID string) (Message, error) {
	var body statusBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return Message{}, fmt.Errorf("decode status: %w", err)
	}

	st := &Status{MainboardID: mainboardID}

	if body.CurrentStatus != nil {
		codes := make([]int, len(*body.CurrentStatus))
		for i, c := range *body.CurrentStatus {
			codes[i] = int(c)
		}
		set := NewMachineStatusSet(codes)
		st.MachineStatuses = &set
	}

	if body.CurrenCoord != nil {
		if z, ok := ParseZ(*body.CurrenCoord); ok {
			st.Z = &z
		}
	}

	if pi := body.PrintInfo; pi != nil {
		info := &PrintInfo{
			CurrentLayer:  pi.CurrentLayer.intPtr(),
			TotalLayer:    pi.TotalLayer.intPtr(),
			Progress:      pi.Progress.intPtr(),
			CurrentTicks:  pi.CurrentTicks.intPtr(),
			TotalTicks:    pi.TotalTicks.intPtr(),
			PrintSpeedPct: pi.PrintSpeedPct.intPtr(),
		}
		if pi.Status != nil {
			s := PrintStatus(*pi.Status)
			info.Status = &s
		}
		st.PrintInfo = info
	}

	return Message{Kind: KindStatus, Status: st}, nil
}

func (n *number) intPtr() *int {
	if n == nil {
		return nil
	}
	v := int(*n)
	return &v
}

// ParseZ extracts the Z height from a "x,y,z" coordinate string.
func ParseZ(coord string) (float64, bool) {
	fields := strings.Split(coord, ",")
	if len(fields) < 3 {
		return 0, false
	}
	z, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
	if err != nil {
		return 0, false
	}
	return z, true
}
