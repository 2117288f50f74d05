package probe

import (
	"bufio"
	"io"

	"github.com/DiscordGSM/GameServerMonitor/internal/errs"
)

// PutVarInt appends n encoded as a Minecraft-protocol VarInt (7 bits per
// byte, little-endian, continuation bit 0x80) to buf.
func PutVarInt(buf []byte, n int32) []byte {
	u := uint32(n)
	for {
		b := byte(u & 0x7f)
		u >>= 7
		if u != 0 {
			b |= 0x80
		}
		buf = append(buf, b)
		if u == 0 {
			return buf
		}
	}
}

// ReadVarInt reads a Minecraft-protocol VarInt from r.
func ReadVarInt(r *bufio.Reader) (int32, error) {
	var result int32
	for shift := uint(0); shift < 35; shift += 7 {
		b, err := r.ReadByte()
		if err != nil {
			return 0, errs.New(errs.Protocol, "read varint", err)
		}
		result |= int32(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
	}
	return 0, errs.New(errs.Protocol, "varint too long", nil)
}

// ReadFramedPacket reads a VarInt-length-prefixed packet body, the framing
// every Minecraft Java Edition protocol packet uses.
func ReadFramedPacket(r *bufio.Reader) ([]byte, error) {
	length, err := ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	if length < 0 || length > int32(MaxDatagramSize*8) {
		return nil, errs.New(errs.Protocol, "framed packet too large", nil)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, errs.New(errs.Protocol, "read framed packet body", err)
	}
	return body, nil
}
