package protocol

import (
	"bytes"
	"fmt"

	"github.com/Versifine/mecharig/internal/entity"
)

// Welcome tells a client which character it controls and how often the
// server steps.
type Welcome struct {
	Character entity.ID
	TickRate  int32
}

func CreateWelcomePacket(w Welcome) *Packet {
	buf := new(bytes.Buffer)
	_ = WriteVarint(buf, int32(w.Character))
	_ = WriteVarint(buf, w.TickRate)
	return &Packet{
		ID:      S2CWelcome,
		Payload: buf.Bytes(),
	}
}

func ParseWelcome(payload []byte) (Welcome, error) {
	var w Welcome
	err := parse(S2CWelcome, payload, func(r *bytes.Reader) error {
		id, err := ReadVarint(r)
		if err != nil {
			return err
		}
		rate, err := ReadVarint(r)
		if err != nil {
			return err
		}
		w.Character = entity.ID(uint32(id))
		w.TickRate = rate
		if !w.Character.Valid() || rate <= 0 {
			return fmt.Errorf("%w: welcome id=%d rate=%d", ErrInvalidPacket, id, rate)
		}
		return nil
	})
	return w, err
}
