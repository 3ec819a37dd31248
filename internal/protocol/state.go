package protocol

import (
	"bytes"
	"fmt"

	"github.com/Versifine/mecharig/internal/anim"
	"github.com/Versifine/mecharig/internal/entity"
	"github.com/go-gl/mathgl/mgl32"
)

// State is one character's result of one server step.
type State struct {
	Tick      uint64
	Character entity.ID
	Position  mgl32.Vec3
	Heading   mgl32.Quat
	Motion    anim.MotionState
	Clip      string
	Looping   bool
	Eye       mgl32.Vec3
	LookAt    mgl32.Vec3
}

func CreateStatePacket(s State) (*Packet, error) {
	buf := new(bytes.Buffer)
	_ = WriteVarLong(buf, int64(s.Tick))
	_ = WriteVarint(buf, int32(s.Character))
	_ = WriteVec3(buf, s.Position)
	_ = WriteQuat(buf, s.Heading)
	_ = WriteVarint(buf, int32(s.Motion))
	if err := WriteString(buf, s.Clip); err != nil {
		return nil, err
	}
	_ = WriteBool(buf, s.Looping)
	_ = WriteVec3(buf, s.Eye)
	_ = WriteVec3(buf, s.LookAt)
	return &Packet{
		ID:      S2CState,
		Payload: buf.Bytes(),
	}, nil
}

func ParseState(payload []byte) (State, error) {
	var s State
	err := parse(S2CState, payload, func(r *bytes.Reader) error {
		tick, err := ReadVarLong(r)
		if err != nil {
			return err
		}
		id, err := ReadVarint(r)
		if err != nil {
			return err
		}
		if s.Position, err = ReadVec3(r); err != nil {
			return err
		}
		if s.Heading, err = ReadQuat(r); err != nil {
			return err
		}
		motion, err := ReadVarint(r)
		if err != nil {
			return err
		}
		if s.Clip, err = ReadString(r); err != nil {
			return err
		}
		if s.Looping, err = ReadBool(r); err != nil {
			return err
		}
		if s.Eye, err = ReadVec3(r); err != nil {
			return err
		}
		if s.LookAt, err = ReadVec3(r); err != nil {
			return err
		}

		s.Tick = uint64(tick)
		s.Character = entity.ID(uint32(id))
		if motion < 0 || motion > 0xFF || !anim.MotionState(motion).Valid() {
			return fmt.Errorf("%w: motion state %d", ErrInvalidPacket, motion)
		}
		s.Motion = anim.MotionState(motion)
		return nil
	})
	return s, err
}
