package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestEncodeDecodeKeepsProfile(t *testing.T) {
	in := State{
		Credentials: &Credentials{
			AccessToken:  strings.Repeat("a", 1200),
			RefreshToken: "r-1",
			ExpiresAt:    time.Unix(1_800_000_000, 0),
		},
		User: &User{ID: "u-1", Email: "u@example.com", Name: "U", Roles: []string{"admin", "viewer"}},
	}

	data, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("state mismatch:\nin:  %+v\nout: %+v", in, out)
	}
}

func TestEncodeRejectsPartialPair(t *testing.T) {
	_, err := Encode(State{Credentials: &Credentials{AccessToken: "a"}})
	if !errors.Is(err, ErrPartialCredentials) {
		t.Fatalf("expected ErrPartialCredentials, got %v", err)
	}
	if _, err := Encode(State{}); !errors.Is(err, ErrPartialCredentials) {
		t.Fatalf("expected ErrPartialCredentials for empty state, got %v", err)
	}
}

func TestDecodeRejectsUnsupportedVersion(t *testing.T) {
	_, err := Decode([]byte{99})
	if err == nil || !strings.Contains(err.Error(), "unsupported state format version") {
		t.Fatalf("expected unsupported version error, got %v", err)
	}
}

func TestDecodeLegacyV1HasNoUser(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(stateFormatVersionV1)
	for _, s := range []string{"access-v1", "refresh-v1"} {
		_ = binary.Write(&buf, binary.BigEndian, uint16(len(s)))
		buf.WriteString(s)
	}
	_ = binary.Write(&buf, binary.BigEndian, int64(0))

	s, err := Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("decode v1: %v", err)
	}
	if s.AccessToken() != "access-v1" || s.RefreshToken() != "refresh-v1" {
		t.Fatalf("unexpected tokens %+v", s.Credentials)
	}
	if s.User != nil {
		t.Fatalf("expected nil user for v1 blob, got %+v", s.User)
	}
	if !s.Credentials.ExpiresAt.IsZero() {
		t.Fatalf("expected zero expiry, got %v", s.Credentials.ExpiresAt)
	}
}
