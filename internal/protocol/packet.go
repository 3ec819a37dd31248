package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// MaxPacketSize bounds one transport message. The largest packet, State,
// is well under this.
const MaxPacketSize = 1024

// Packet is one transport message: [varint id][payload]. The transport
// keeps message boundaries, so there is no length prefix.
type Packet struct {
	ID      int32
	Payload []byte
}

// ReadPacket decodes a whole message.
func ReadPacket(frame []byte) (*Packet, error) {
	if len(frame) == 0 {
		return nil, ErrInvalidPacket
	}
	if len(frame) > MaxPacketSize {
		return nil, ErrPacketTooLarge
	}
	r := bytes.NewReader(frame)
	id, err := ReadVarint(r)
	if err != nil {
		return nil, errors.Join(ErrInvalidPacket, err)
	}
	payload := make([]byte, r.Len())
	_, _ = r.Read(payload)
	return &Packet{ID: id, Payload: payload}, nil
}

// Marshal encodes the packet as one message.
func (p *Packet) Marshal() ([]byte, error) {
	size := VarIntLen(p.ID) + len(p.Payload)
	if size > MaxPacketSize {
		return nil, ErrPacketTooLarge
	}
	buf := bytes.NewBuffer(make([]byte, 0, size))
	if err := WriteVarint(buf, p.ID); err != nil {
		return nil, err
	}
	buf.Write(p.Payload)
	return buf.Bytes(), nil
}

// Writer is the send half of a message oriented connection.
type Writer interface {
	Write(b []byte) (int, error)
}

// WritePacket marshals p and writes it as one message.
func WritePacket(w Writer, p *Packet) error {
	data, err := p.Marshal()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// parse runs decode over payload and rejects truncated or trailing bytes.
func parse(id int32, payload []byte, decode func(r *bytes.Reader) error) error {
	r := bytes.NewReader(payload)
	if err := decode(r); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: packet 0x%02x truncated", ErrInvalidPacket, id)
		}
		if errors.Is(err, ErrInvalidPacket) || errors.Is(err, ErrVarIntTooLong) || errors.Is(err, ErrVarLongTooLong) {
			return fmt.Errorf("packet 0x%02x: %w", id, err)
		}
		return errors.Join(ErrInvalidPacket, err)
	}
	if r.Len() != 0 {
		return fmt.Errorf("%w: packet 0x%02x has %d trailing bytes", ErrInvalidPacket, id, r.Len())
	}
	return nil
}
