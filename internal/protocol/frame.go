package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// WriteRequest frames and writes req in a single Write call.
func WriteRequest(w io.Writer, req *Request) error {
	data, err := req.Serialize()
	if err != nil {
		return err
	}
	return writeFrame(w, data)
}

// ReadRequest reads one framed request. A clean disconnect between frames
// returns io.EOF; anything else that cannot be decoded wraps ErrProtocol or
// the underlying transport error.
func ReadRequest(r io.Reader, maxFrame uint32) (*Request, error) {
	data, err := readFrame(r, maxFrame)
	if err != nil {
		return nil, err
	}
	return DeserializeRequest(data)
}

// WriteResponse frames and writes resp in a single Write call.
func WriteResponse(w io.Writer, resp *Response) error {
	data, err := resp.Serialize()
	if err != nil {
		return err
	}
	return writeFrame(w, data)
}

// ReadResponse reads one framed response.
func ReadResponse(r io.Reader, maxFrame uint32) (*Response, error) {
	data, err := readFrame(r, maxFrame)
	if err != nil {
		return nil, err
	}
	return DeserializeResponse(data)
}

func writeFrame(w io.Writer, data []byte) error {
	if uint64(len(data)) > math.MaxUint32 {
		return fmt.Errorf("frame too large: %d bytes", len(data))
	}
	frame := make([]byte, HeaderSize+len(data))
	binary.BigEndian.PutUint32(frame, uint32(len(data)))
	copy(frame[HeaderSize:], data)
	_, err := w.Write(frame)
	return err
}

func readFrame(r io.Reader, maxFrame uint32) ([]byte, error) {
	if maxFrame == 0 {
		maxFrame = DefaultMaxFrame
	}
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header)
	if length > maxFrame {
		return nil, fmt.Errorf("%w: frame of %d bytes exceeds limit %d", ErrProtocol, length, maxFrame)
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return data, nil
}
