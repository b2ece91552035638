package kakao

import (
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestDecodeRequestFields(t *testing.T) {
	body := []byte(`{"userRequest":{"utterance":"  안녕  ","user":{"id":"u-1"},"callbackUrl":"https://cb.example/1"}}`)

	req, err := DecodeRequest(body)
	if err != nil {
		t.Fatalf("DecodeRequest err: %v", err)
	}
	if req.Utterance() != "안녕" {
		t.Fatalf("unexpected utterance %q", req.Utterance())
	}
	if req.UserID() != "u-1" {
		t.Fatalf("unexpected user id %q", req.UserID())
	}
	if req.CallbackURL() != "https://cb.example/1" {
		t.Fatalf("unexpected callback %q", req.CallbackURL())
	}
}

func TestDecodeRequestDefaults(t *testing.T) {
	for _, body := range []string{"", "   ", "{}", `{"userRequest":{}}`, `{"userRequest":{"user":{"id":""}}}`} {
		req, err := DecodeRequest([]byte(body))
		if err != nil {
			t.Fatalf("DecodeRequest(%q) err: %v", body, err)
		}
		if req.Utterance() != "" {
			t.Fatalf("body %q: expected empty utterance", body)
		}
		if req.UserID() != UnknownUserID {
			t.Fatalf("body %q: expected unknown user, got %q", body, req.UserID())
		}
	}
}

func TestDecodeRequestInvalidJSON(t *testing.T) {
	req, err := DecodeRequest([]byte(`{"userRequest":`))
	if err == nil {
		t.Fatal("expected decode error")
	}
	if req.Utterance() != "" || req.UserID() != UnknownUserID {
		t.Fatalf("expected zero request, got %+v", req)
	}
}

func TestSimpleTextWireFormat(t *testing.T) {
	data, err := json.Marshal(NewSimpleText("hi"))
	if err != nil {
		t.Fatalf("marshal err: %v", err)
	}
	want := `{"version":"2.0","template":{"outputs":[{"simpleText":{"text":"hi"}}]}}`
	if string(data) != want {
		t.Fatalf("unexpected envelope:\n got %s\nwant %s", data, want)
	}
}

func TestSimpleTextEmptyTextIsPresent(t *testing.T) {
	data, _ := json.Marshal(NewSimpleText(""))
	if !strings.Contains(string(data), `"text":""`) {
		t.Fatalf("text field must never be omitted: %s", data)
	}
}

func TestCallbackAckWireFormat(t *testing.T) {
	data, _ := json.Marshal(NewCallbackAck("wait"))
	want := `{"version":"2.0","useCallback":true,"template":{"outputs":[{"simpleText":{"text":"wait"}}]}}`
	if string(data) != want {
		t.Fatalf("unexpected ack:\n got %s\nwant %s", data, want)
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("가", 1500)
	got := Truncate(long, 1000)
	if utf8.RuneCountInString(got) != 1000 {
		t.Fatalf("expected 1000 runes, got %d", utf8.RuneCountInString(got))
	}
	if !utf8.ValidString(got) {
		t.Fatal("truncation corrupted utf-8")
	}

	if Truncate("hello", 1000) != "hello" {
		t.Fatal("short text must be unchanged")
	}
	if Truncate("abcdef", 3) != "abc" {
		t.Fatalf("unexpected ascii truncation: %q", Truncate("abcdef", 3))
	}
}
