// Package protocol implements the framed request/response protocol spoken
// between pipekv clients and the server over a local stream socket.
//
// Frame format:
//   - 4 bytes: payload length (big-endian), header excluded
//   - 1 byte: schema version
//   - MessagePack map with named fields (see Request and Response)
//
// Frames carry no other delimiters, so any number of requests and responses
// can travel back-to-back over one long-lived connection. Unknown map keys
// are ignored, which lets either side add fields without breaking the other.
package protocol

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/hashicorp/go-msgpack/v2/codec"
)

const (
	// Version is the schema version written in every frame.
	Version byte = 1
	// HeaderSize is the length prefix size in bytes.
	HeaderSize = 4
	// DefaultMaxFrame bounds a single frame when no limit is configured.
	DefaultMaxFrame = 1 << 20
)

var (
	// ErrProtocol marks a frame that cannot be decoded. It is fatal for the
	// connection that produced it.
	ErrProtocol = errors.New("protocol: malformed frame")
	// ErrMissingField marks a well-formed request that lacks a field its
	// command requires.
	ErrMissingField = errors.New("protocol: missing field")
)

// Command names a request operation.
type Command string

const (
	CmdInsert       Command = "insert"
	CmdRemove       Command = "remove"
	CmdUpdate       Command = "update"
	CmdSearch       Command = "search"
	CmdSaveToFile   Command = "save_to_file"
	CmdLoadFromFile Command = "load_from_file"
)

// Known reports whether c is one of the defined commands.
func (c Command) Known() bool {
	switch c {
	case CmdInsert, CmdRemove, CmdUpdate, CmdSearch, CmdSaveToFile, CmdLoadFromFile:
		return true
	}
	return false
}

// Status is the outcome class of a response.
type Status string

const (
	StatusOK       Status = "ok"
	StatusNotFound Status = "not_found"
	StatusInvalid  Status = "invalid"
	StatusError    Status = "error"
)

// Reason refines an Invalid status.
type Reason string

const (
	ReasonDuplicateTag    Reason = "duplicate_tag"
	ReasonUnknownStrategy Reason = "unknown_strategy"
	ReasonUnknownCommand  Reason = "unknown_command"
	ReasonMissingField    Reason = "missing_field"
	ReasonBadFileName     Reason = "bad_file_name"
)

// Request is a single client operation. Tag and Value travel as nil when
// unset so an empty value stays distinct from a missing one.
type Request struct {
	Command  Command `codec:"cmd"`
	Tag      *int64  `codec:"tag"`
	Value    *string `codec:"value"`
	FileName string  `codec:"file,omitempty"`
	Strategy string  `codec:"strategy,omitempty"`
}

// Response is the server's answer to exactly one Request.
type Response struct {
	Status  Status `codec:"status"`
	Reason  Reason `codec:"reason,omitempty"`
	Payload string `codec:"payload,omitempty"`
}

func NewInsert(tag int64, value, strategy string) *Request {
	return &Request{Command: CmdInsert, Tag: &tag, Value: &value, Strategy: strategy}
}

func NewUpdate(tag int64, value, strategy string) *Request {
	return &Request{Command: CmdUpdate, Tag: &tag, Value: &value, Strategy: strategy}
}

func NewRemove(tag int64, strategy string) *Request {
	return &Request{Command: CmdRemove, Tag: &tag, Strategy: strategy}
}

func NewSearch(tag int64, strategy string) *Request {
	return &Request{Command: CmdSearch, Tag: &tag, Strategy: strategy}
}

func NewSave(fileName string) *Request {
	return &Request{Command: CmdSaveToFile, FileName: fileName}
}

func NewLoad(fileName string) *Request {
	return &Request{Command: CmdLoadFromFile, FileName: fileName}
}

// CheckFields verifies the per-command required fields. Unknown commands
// pass; the dispatcher reports them separately.
func (r *Request) CheckFields() error {
	switch r.Command {
	case CmdInsert, CmdUpdate:
		if r.Tag == nil {
			return fmt.Errorf("%w: tag", ErrMissingField)
		}
		if r.Value == nil {
			return fmt.Errorf("%w: value", ErrMissingField)
		}
	case CmdRemove, CmdSearch:
		if r.Tag == nil {
			return fmt.Errorf("%w: tag", ErrMissingField)
		}
	case CmdSaveToFile, CmdLoadFromFile:
		if r.FileName == "" {
			return fmt.Errorf("%w: file", ErrMissingField)
		}
	}
	return nil
}

// msgpackHandle is shared by all encoders; handles are safe for concurrent
// use once configured.
var msgpackHandle = &codec.MsgpackHandle{WriteExt: true}

// Serialize encodes the request payload, version byte included.
func (r *Request) Serialize() ([]byte, error) {
	return encode(r)
}

// DeserializeRequest decodes a payload produced by Request.Serialize.
func DeserializeRequest(data []byte) (*Request, error) {
	req := &Request{}
	if err := decode(data, req); err != nil {
		return nil, err
	}
	if req.Command == "" {
		return nil, fmt.Errorf("%w: request without command", ErrProtocol)
	}
	return req, nil
}

// Serialize encodes the response payload, version byte included.
func (r *Response) Serialize() ([]byte, error) {
	return encode(r)
}

// DeserializeResponse decodes a payload produced by Response.Serialize.
func DeserializeResponse(data []byte) (*Response, error) {
	resp := &Response{}
	if err := decode(data, resp); err != nil {
		return nil, err
	}
	switch resp.Status {
	case StatusOK, StatusNotFound, StatusInvalid, StatusError:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrProtocol, resp.Status)
	}
	return resp, nil
}

func encode(v any) ([]byte, error) {
	buf := bytes.NewBuffer([]byte{Version})
	if err := codec.NewEncoder(buf, msgpackHandle).Encode(v); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return buf.Bytes(), nil
}

func decode(data []byte, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty payload", ErrProtocol)
	}
	if data[0] != Version {
		return fmt.Errorf("%w: unsupported version %d", ErrProtocol, data[0])
	}
	if len(data) == 1 {
		return fmt.Errorf("%w: missing body", ErrProtocol)
	}
	body := bytes.NewReader(data[1:])
	if err := codec.NewDecoder(body, msgpackHandle).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if body.Len() != 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrProtocol, body.Len())
	}
	return nil
}
