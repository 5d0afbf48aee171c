package decode_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hexlift/hexlift/decode"
)

func TestDecodeXorEaxEax(t *testing.T) {
	// 31 c0 = xor eax, eax
	d := decode.NewDecoder([]byte{0x31, 0xc0}, 0x400000)
	inst, addr, length, err := d.Next()
	require.NoError(t, err)
	require.EqualValues(t, 0x400000, addr)
	require.Equal(t, 2, length)
	require.Contains(t, inst.Op.String(), "XOR")
	require.True(t, d.Done())
}

func TestDecodeTruncatesOnIllegalByte(t *testing.T) {
	d := decode.NewDecoder([]byte{0x0f, 0xff}, 0x1000)
	_, _, _, err := d.Next()
	require.ErrorIs(t, err, decode.ErrDecode)
}

func TestReg64Offsets(t *testing.T) {
	require.NotEqual(t, decode.Reg64("RAX").Offset, decode.Reg64("RBX").Offset)
	require.Equal(t, "RAX", decode.Reg64("RAX").Name)
}
