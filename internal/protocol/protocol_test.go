package protocol

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFraming_BackToBack(t *testing.T) {
	var buf bytes.Buffer
	reqs := []*Request{
		NewInsert(1, "a", "fifo"),
		NewSearch(1, ""),
		NewUpdate(1, "", "lru"),
		NewSave("snap.json"),
	}
	for _, r := range reqs {
		require.NoError(t, WriteRequest(&buf, r))
	}

	for _, want := range reqs {
		got, err := ReadRequest(&buf, 0)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ReadRequest(&buf, 0)
	assert.ErrorIs(t, err, io.EOF)
}

func TestFraming_OptionalFieldsOmitted(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRequest(&buf, NewLoad("x.bolt")))

	got, err := ReadRequest(&buf, 0)
	require.NoError(t, err)
	assert.Nil(t, got.Tag)
	assert.Nil(t, got.Value)
	assert.Empty(t, got.Strategy)
	assert.Equal(t, "x.bolt", got.FileName)
}

func TestFraming_Response(t *testing.T) {
	var buf bytes.Buffer
	resps := []*Response{
		{Status: StatusOK, Payload: "hello"},
		{Status: StatusInvalid, Reason: ReasonDuplicateTag, Payload: "store: duplicate tag: 1"},
		{Status: StatusNotFound},
	}
	for _, r := range resps {
		require.NoError(t, WriteResponse(&buf, r))
	}
	for _, want := range resps {
		got, err := ReadResponse(&buf, 0)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func frame(payload []byte) []byte {
	out := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(out, uint32(len(payload)))
	copy(out[HeaderSize:], payload)
	return out
}

func TestReadRequest_Malformed(t *testing.T) {
	valid, err := NewSearch(3, "").Serialize()
	require.NoError(t, err)
	wrongVersion := append([]byte{Version + 1}, valid[1:]...)
	noCommand, err := (&Response{Status: StatusOK}).Serialize()
	require.NoError(t, err)
	trailing := append(append([]byte(nil), valid...), 0xc1, 0xc1, 0xc1)

	tests := []struct {
		name  string
		input []byte
	}{
		{name: "empty payload", input: frame(nil)},
		{name: "version only", input: frame([]byte{Version})},
		{name: "wrong version", input: frame(wrongVersion)},
		{name: "not a map", input: frame([]byte{Version, 0x05})},
		{name: "garbage", input: frame([]byte{Version, 0xc1, 0xc1, 0xc1})},
		{name: "no command", input: frame(noCommand)},
		{name: "trailing bytes", input: frame(trailing)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadRequest(bytes.NewReader(tt.input), 0)
			assert.ErrorIs(t, err, ErrProtocol)
		})
	}
}

func TestReadRequest_Oversized(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRequest(&buf, NewInsert(1, string(make([]byte, 64)), "")))

	_, err := ReadRequest(&buf, 16)
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestReadRequest_Truncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRequest(&buf, NewInsert(1, "abcdef", "")))
	data := buf.Bytes()

	_, err := ReadRequest(bytes.NewReader(data[:len(data)-2]), 0)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = ReadRequest(bytes.NewReader(data[:2]), 0)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadResponse_UnknownStatus(t *testing.T) {
	data, err := (&Response{Status: "maybe"}).Serialize()
	require.NoError(t, err)

	_, err = ReadResponse(bytes.NewReader(frame(data)), 0)
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestCheckFields(t *testing.T) {
	tag := int64(1)
	value := "v"
	tests := []struct {
		name    string
		req     *Request
		wantErr bool
	}{
		{name: "insert ok", req: NewInsert(1, "v", "")},
		{name: "insert without value", req: &Request{Command: CmdInsert, Tag: &tag}, wantErr: true},
		{name: "update without tag", req: &Request{Command: CmdUpdate, Value: &value}, wantErr: true},
		{name: "remove ok", req: NewRemove(1, "")},
		{name: "search without tag", req: &Request{Command: CmdSearch}, wantErr: true},
		{name: "save without file", req: &Request{Command: CmdSaveToFile}, wantErr: true},
		{name: "load ok", req: NewLoad("f")},
		{name: "unknown passes", req: &Request{Command: "compact"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.CheckFields()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMissingField)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
