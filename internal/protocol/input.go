package protocol

import (
	"bytes"

	"github.com/Versifine/mecharig/internal/input"
)

// CreateInputPacket encodes one step of client input. Movement keys travel
// as a direction vector, actions as flag bits.
func CreateInputPacket(s input.Snapshot) *Packet {
	buf := new(bytes.Buffer)
	_ = WriteVec2(buf, s.Direction())
	_ = WriteVec2(buf, s.MouseDelta)
	_ = WriteByte(buf, s.Flags())
	return &Packet{
		ID:      C2SInput,
		Payload: buf.Bytes(),
	}
}

// ParseInput decodes an input packet. Direction components are snapped to
// the nearest axis value; unknown flag bits are ignored.
func ParseInput(payload []byte) (input.Snapshot, error) {
	var s input.Snapshot
	err := parse(C2SInput, payload, func(r *bytes.Reader) error {
		dir, err := ReadVec2(r)
		if err != nil {
			return err
		}
		mouse, err := ReadVec2(r)
		if err != nil {
			return err
		}
		flags, err := ReadByte(r)
		if err != nil {
			return err
		}
		s = input.FromWire(dir, mouse, flags)
		return nil
	})
	return s, err
}
