package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const sessionFormatVersionV1 = 1

// Encode serializes a [Session] into the compact binary blob stored in
// Redis. The format is versioned; the encoder is append-only, so future
// versions add fields but never reinterpret old ones.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(sessionFormatVersionV1)

	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.RevokedAt); err != nil {
		return nil, err
	}

	if len(s.AccountID) > 255 {
		return nil, errors.New("accountID too long")
	}
	buf.WriteByte(byte(len(s.AccountID)))
	buf.WriteString(s.AccountID)

	if len(s.Token) > 65535 {
		return nil, errors.New("token too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(s.Token))); err != nil {
		return nil, err
	}
	buf.WriteString(s.Token)

	return buf.Bytes(), nil
}

// Decode parses a binary session blob. TokenHash is not part of the blob;
// the store sets it from the storage key after decoding.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sessionFormatVersionV1 {
		return nil, errors.New("invalid session version")
	}

	s := &Session{}
	if err := binary.Read(reader, binary.BigEndian, &s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &s.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &s.RevokedAt); err != nil {
		return nil, err
	}

	accountLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	account := make([]byte, accountLen)
	if _, err := io.ReadFull(reader, account); err != nil {
		return nil, err
	}
	s.AccountID = string(account)

	var tokenLen uint16
	if err := binary.Read(reader, binary.BigEndian, &tokenLen); err != nil {
		return nil, err
	}
	token := make([]byte, tokenLen)
	if _, err := io.ReadFull(reader, token); err != nil {
		return nil, err
	}
	s.Token = string(token)

	return s, nil
}
