package canbus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

const (
	// wire size of a classical can_frame
	FrameLength = 16

	MaxDataLength = 8

	canEFFFlag uint32 = 0x80000000
	canRTRFlag uint32 = 0x40000000
	canSFFMask uint32 = 0x000007FF
	canEFFMask uint32 = 0x1FFFFFFF
)

// errors
var (
	ERR_DATA_TOO_LONG = errors.New("data length exceeds 8 bytes")
	ERR_BAD_ID        = errors.New("identifier out of range")
	ERR_SHORT_FRAME   = errors.New("raw frame shorter than 16 bytes")
)

type Frame struct {
	ID       uint32 // 11-bit standard or 29-bit extended identifier
	Extended bool
	RTR      bool
	Data     []byte // payload up to 8 bytes. DLC is taken from len(Data).
}

func (f *Frame) Validate() error {
	if len(f.Data) > MaxDataLength {
		return ERR_DATA_TOO_LONG
	}
	if f.Extended {
		if f.ID > canEFFMask {
			return ERR_BAD_ID
		}
	} else if f.ID > canSFFMask {
		return ERR_BAD_ID
	}
	return nil
}

// ToByteArray encodes the frame into the 16 byte can_frame layout used by
// the kernel: little-endian ID word carrying the EFF/RTR flags, a DLC byte,
// three bytes padding and up to 8 data bytes.
func (f *Frame) ToByteArray() (raw []byte, err error) {
	if err = f.Validate(); err != nil {
		return nil, err
	}

	raw = make([]byte, FrameLength)

	oid := f.ID
	if f.Extended {
		oid |= canEFFFlag
	}
	if f.RTR {
		oid |= canRTRFlag
	}
	binary.LittleEndian.PutUint32(raw[0:4], oid)

	raw[4] = byte(len(f.Data))
	copy(raw[8:], f.Data)

	return raw, nil
}

// FrameFromByteArray decodes a raw can_frame.
func FrameFromByteArray(raw []byte) (*Frame, error) {
	if len(raw) < FrameLength {
		return nil, ERR_SHORT_FRAME
	}

	var f Frame
	oid := binary.LittleEndian.Uint32(raw[0:4])

	f.Extended = oid&canEFFFlag != 0
	f.RTR = oid&canRTRFlag != 0
	if f.Extended {
		f.ID = oid & canEFFMask
	} else {
		f.ID = oid & canSFFMask
	}

	dlc := int(raw[4])
	if dlc > MaxDataLength {
		dlc = MaxDataLength
	}
	f.Data = make([]byte, dlc)
	copy(f.Data, raw[8:8+dlc])

	return &f, nil
}

func (f *Frame) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "0x%04X \t[%d]", f.ID, len(f.Data))
	for i := 0; i < len(f.Data); i++ {
		fmt.Fprintf(&b, " %02x", f.Data[i])
	}
	if f.RTR {
		b.WriteString(" RTR")
	}
	return b.String()
}
