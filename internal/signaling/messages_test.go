package signaling

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseEnvelopeValidation(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{"not json", `{"type":`, ErrMalformedMessage},
		{"unknown type", `{"type":"videoOffer","from":"a","to":"b"}`, ErrUnknownMessageType},
		{"offer ok", `{"type":"mediaOffer","from":"a","to":"b","offer":{"type":"offer","sdp":"v=0"}}`, nil},
		{"offer missing to", `{"type":"mediaOffer","from":"a","offer":{"type":"offer","sdp":"v=0"}}`, ErrMalformedMessage},
		{"offer missing from", `{"type":"mediaOffer","to":"b","offer":{"type":"offer","sdp":"v=0"}}`, ErrMalformedMessage},
		{"offer missing body", `{"type":"mediaOffer","from":"a","to":"b"}`, ErrMalformedMessage},
		{"offer empty sdp", `{"type":"mediaOffer","from":"a","to":"b","offer":{"type":"offer","sdp":""}}`, ErrMalformedMessage},
		{"answer ok", `{"type":"mediaAnswer","from":"b","to":"a","answer":{"type":"answer","sdp":"v=0"}}`, nil},
		{"answer missing body", `{"type":"mediaAnswer","from":"b","to":"a"}`, ErrMalformedMessage},
		{"answer missing from", `{"type":"mediaAnswer","to":"a","answer":{"type":"answer","sdp":"v=0"}}`, ErrMalformedMessage},
		{"candidate ok", `{"type":"iceCandidate","from":"a","to":"b","candidate":{"candidate":"candidate:1 1 udp 1 127.0.0.1 1000 typ host"}}`, nil},
		{"candidate missing body", `{"type":"iceCandidate","from":"a","to":"b"}`, ErrMalformedMessage},
		{"candidate missing from", `{"type":"iceCandidate","to":"b","candidate":{"candidate":"candidate:1 1 udp 1 127.0.0.1 1000 typ host"}}`, ErrMalformedMessage},
		{"hangup with to", `{"type":"hangup","from":"a","to":"b"}`, nil},
		{"hangup without to", `{"type":"hangup","from":"a"}`, nil},
		{"hangup missing from", `{"type":"hangup","to":"b"}`, ErrMalformedMessage},
		{"request user list", `{"type":"requestUserList"}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEnvelope([]byte(tt.raw))
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("ParseEnvelope() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ParseEnvelope() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseEnvelopeKeepsAddressing(t *testing.T) {
	env, err := ParseEnvelope([]byte(`{"type":"mediaOffer","from":"caller-1","to":"callee-2","offer":{"type":"offer","sdp":"v=0"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if env.From != "caller-1" || env.To != "callee-2" {
		t.Fatalf("got from=%q to=%q", env.From, env.To)
	}
	if env.Offer.Type != "offer" || env.Offer.SDP != "v=0" {
		t.Fatalf("offer body not preserved: %+v", env.Offer)
	}
}

func TestUserListEnvelopeExcludesRecipient(t *testing.T) {
	env := userListEnvelope([]string{"alpha", "beta", "gamma"}, "beta")
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}
	var decoded struct {
		Type string `json:"type"`
		Data struct {
			UserIDs []string `json:"userIds"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Type != "update-user-list" {
		t.Fatalf("type = %q", decoded.Type)
	}
	if len(decoded.Data.UserIDs) != 2 || decoded.Data.UserIDs[0] != "alpha" || decoded.Data.UserIDs[1] != "gamma" {
		t.Fatalf("userIds = %v", decoded.Data.UserIDs)
	}
}

func TestSessionDescriptionToPion(t *testing.T) {
	if _, err := (SessionDescription{Type: "offer", SDP: "v=0"}).ToPion(); err != nil {
		t.Fatalf("offer: %v", err)
	}
	if _, err := (SessionDescription{Type: "bogus", SDP: "v=0"}).ToPion(); err == nil {
		t.Fatal("expected error for unsupported sdp type")
	}
}
