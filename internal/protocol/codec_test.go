package protocol

import (
	"testing"
	"time"

	"github.com/dkeye/Relay/internal/domain"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

func TestDecode_KnownTypes(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  Inbound
	}{
		{"message", `{"type":"message","text":"hi"}`, Inbound{Type: TypeMessage, Text: "hi"}},
		{"message number text", `{"type":"message","text":42}`, Inbound{Type: TypeMessage, Text: "42"}},
		{"message missing text", `{"type":"message"}`, Inbound{Type: TypeMessage}},
		{"message object text", `{"type":"message","text":{"a":1}}`, Inbound{Type: TypeMessage}},
		{"typing true", `{"type":"typing","isTyping":true}`, Inbound{Type: TypeTyping, IsTyping: true}},
		{"typing truthy number", `{"type":"typing","isTyping":1}`, Inbound{Type: TypeTyping, IsTyping: true}},
		{"typing zero", `{"type":"typing","isTyping":0}`, Inbound{Type: TypeTyping}},
		{"typing empty string", `{"type":"typing","isTyping":""}`, Inbound{Type: TypeTyping}},
		{"typing non empty string", `{"type":"typing","isTyping":"yes"}`, Inbound{Type: TypeTyping, IsTyping: true}},
		{"typing missing", `{"type":"typing"}`, Inbound{Type: TypeTyping}},
		{"set-name", `{"type":"set-name","name":"bob"}`, Inbound{Type: TypeSetName, Name: "bob"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			got, err := Decode([]byte(tt.frame))
			req.NoError(err)
			req.Equal(tt.want, got)
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		wantErr error
	}{
		{"not json", `hello`, ErrMalformedFrame},
		{"array", `[1,2]`, ErrMalformedFrame},
		{"missing type", `{"text":"hi"}`, ErrMalformedFrame},
		{"type not a string", `{"type":5}`, ErrMalformedFrame},
		{"unknown type", `{"type":"dance"}`, ErrUnknownType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			_, err := Decode([]byte(tt.frame))
			req.ErrorIs(err, tt.wantErr)
		})
	}
}

func TestDecode_UnknownTypeNamesTheType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"dance"}`))
	require.EqualError(t, err, `unknown event type "dance"`)
}

func TestEncode_Shapes(t *testing.T) {
	req := require.New(t)
	alice := domain.Identity{ID: "u1", DisplayName: "alice"}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	frame, err := Encode(NewPresence(ActionJoin, alice))
	req.NoError(err)
	req.JSONEq(`{"type":"presence","action":"join","user":{"id":"u1","displayName":"alice"}}`, string(frame))

	frame, err = Encode(NewTyping(alice, true))
	req.NoError(err)
	req.JSONEq(`{"type":"typing","senderId":"u1","senderName":"alice","isTyping":true}`, string(frame))

	msg := domain.StoredMessage{ID: "m1", SenderID: "u1", SenderName: "alice", Text: "hi", CreatedAt: at}
	frame, err = Encode(NewMessage(msg))
	req.NoError(err)
	req.JSONEq(`{"type":"message","senderId":"u1","senderName":"alice","text":"hi","timestamp":"2026-01-02T03:04:05Z"}`, string(frame))

	frame, err = Encode(NewError("boom"))
	req.NoError(err)
	req.JSONEq(`{"type":"error","text":"boom"}`, string(frame))
}

func TestEncode_EmptyHistoryIsAnArray(t *testing.T) {
	req := require.New(t)
	frame, err := Encode(NewHistory(nil))
	req.NoError(err)

	var decoded map[string]any
	req.NoError(json.Unmarshal(frame, &decoded))
	req.Equal([]any{}, decoded["messages"])
}

func TestNewHistory_KeepsOrder(t *testing.T) {
	req := require.New(t)
	at := time.Now().UTC()
	msgs := []domain.StoredMessage{
		{SenderName: "a", Text: "1", CreatedAt: at},
		{SenderName: "b", Text: "2", CreatedAt: at.Add(time.Second)},
	}

	h := NewHistory(msgs)

	req.Len(h.Messages, 2)
	req.Equal("1", h.Messages[0].Text)
	req.Equal("2", h.Messages[1].Text)
	req.Equal(TypeMessage, h.Messages[1].Type)
}
