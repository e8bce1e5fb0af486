package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"
)

const (
	stateFormatVersionCurrent = 2
	stateFormatVersionV1      = 1
)

const (
	maxTokenLen = math.MaxUint16
	maxFieldLen = math.MaxUint8
	maxRoles    = math.MaxUint8
)

// Encode serializes a signed-in state. Layout (v2):
//
//	version u8
//	access  u16 len + bytes
//	refresh u16 len + bytes
//	expires i64 unix seconds, 0 when unknown
//	hasUser u8
//	[user]  id, email, name as u8 len + bytes; roles u8 count, each u8 len + bytes
func Encode(s State) ([]byte, error) {
	if !s.Credentials.Complete() {
		return nil, ErrPartialCredentials
	}

	var buf bytes.Buffer
	buf.WriteByte(stateFormatVersionCurrent)

	if err := writeLong(&buf, s.Credentials.AccessToken, "access token"); err != nil {
		return nil, err
	}
	if err := writeLong(&buf, s.Credentials.RefreshToken, "refresh token"); err != nil {
		return nil, err
	}

	var expires int64
	if !s.Credentials.ExpiresAt.IsZero() {
		expires = s.Credentials.ExpiresAt.Unix()
	}
	if err := binary.Write(&buf, binary.BigEndian, expires); err != nil {
		return nil, err
	}

	if s.User == nil {
		buf.WriteByte(0)
		return buf.Bytes(), nil
	}
	buf.WriteByte(1)

	for _, f := range []struct{ name, value string }{
		{"user id", s.User.ID},
		{"user email", s.User.Email},
		{"user name", s.User.Name},
	} {
		if err := writeShort(&buf, f.value, f.name); err != nil {
			return nil, err
		}
	}

	if len(s.User.Roles) > maxRoles {
		return nil, errors.New("too many roles")
	}
	buf.WriteByte(byte(len(s.User.Roles)))
	for _, role := range s.User.Roles {
		if err := writeShort(&buf, role, "role"); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// Decode parses a blob produced by Encode. v1 blobs predate the user profile and decode
// with a nil User.
func Decode(data []byte) (State, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return State{}, err
	}
	if version != stateFormatVersionCurrent && version != stateFormatVersionV1 {
		return State{}, fmt.Errorf("unsupported state format version %d", version)
	}

	creds := &Credentials{}
	if creds.AccessToken, err = readLong(reader); err != nil {
		return State{}, err
	}
	if creds.RefreshToken, err = readLong(reader); err != nil {
		return State{}, err
	}

	var expires int64
	if err := binary.Read(reader, binary.BigEndian, &expires); err != nil {
		return State{}, err
	}
	if expires != 0 {
		creds.ExpiresAt = time.Unix(expires, 0)
	}

	if !creds.Complete() {
		return State{}, ErrPartialCredentials
	}

	s := State{Credentials: creds}
	if version == stateFormatVersionV1 {
		return s, nil
	}

	hasUser, err := reader.ReadByte()
	if err != nil {
		return State{}, err
	}
	if hasUser == 0 {
		return s, nil
	}

	u := &User{}
	if u.ID, err = readShort(reader); err != nil {
		return State{}, err
	}
	if u.Email, err = readShort(reader); err != nil {
		return State{}, err
	}
	if u.Name, err = readShort(reader); err != nil {
		return State{}, err
	}

	roleCount, err := reader.ReadByte()
	if err != nil {
		return State{}, err
	}
	if roleCount > 0 {
		u.Roles = make([]string, 0, roleCount)
		for i := 0; i < int(roleCount); i++ {
			role, err := readShort(reader)
			if err != nil {
				return State{}, err
			}
			u.Roles = append(u.Roles, role)
		}
	}

	s.User = u
	return s, nil
}

func writeLong(buf *bytes.Buffer, v, name string) error {
	if len(v) > maxTokenLen {
		return fmt.Errorf("%s too long", name)
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(v))); err != nil {
		return err
	}
	buf.WriteString(v)
	return nil
}

func writeShort(buf *bytes.Buffer, v, name string) error {
	if len(v) > maxFieldLen {
		return fmt.Errorf("%s too long", name)
	}
	buf.WriteByte(byte(len(v)))
	buf.WriteString(v)
	return nil
}

func readLong(r *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	return readN(r, int(n))
}

func readShort(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	return readN(r, int(n))
}

func readN(r *bytes.Reader, n int) (string, error) {
	if n > r.Len() {
		return "", io.ErrUnexpectedEOF
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
