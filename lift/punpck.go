package lift

import (
	"github.com/pkg/errors"

	"github.com/hexlift/hexlift/decode"
	"github.com/hexlift/hexlift/ir"
)

// translatePunpck handles the PUNPCK family: interleave lanes from
// the low or high half of the destination and source vectors, one lane-width
// family (byte/word/dword/qword) at a time.
func translatePunpck(e *decode.Env) (Result, error) {
	op := e.Inst.Op.String()
	laneTyp, count, high, err := punpckShape(op)
	if err != nil {
		return Fail, err
	}

	b := e.B
	vecTyp, err := ir.Vector(laneTyp, count)
	if err != nil {
		return Fail, err
	}
	dst, err := e.ReadOperand(0, vecTyp)
	if err != nil {
		return Fail, err
	}
	src, err := e.ReadOperand(1, vecTyp)
	if err != nil {
		return Fail, err
	}

	out, err := b.ConstInt(vecTyp, 0)
	if err != nil {
		return Fail, err
	}
	half := count / 2
	var base uint16
	if high {
		base = half
	}
	for i := uint16(0); i < half; i++ {
		dv, err := b.VecExtract(dst, base+i)
		if err != nil {
			return Fail, err
		}
		sv, err := b.VecExtract(src, base+i)
		if err != nil {
			return Fail, err
		}
		out, err = b.VecInsert(out, 2*i, dv)
		if err != nil {
			return Fail, err
		}
		out, err = b.VecInsert(out, 2*i+1, sv)
		if err != nil {
			return Fail, err
		}
	}
	return writeResult(e, out)
}

func punpckShape(op string) (laneTyp ir.Type, count uint16, high bool, err error) {
	high = len(op) > 7 && op[7] == 'H'
	switch op {
	case "PUNPCKLBW", "PUNPCKHBW":
		return ir.U8, 16, high, nil
	case "PUNPCKLWD", "PUNPCKHWD":
		return ir.U16, 8, high, nil
	case "PUNPCKLDQ", "PUNPCKHDQ":
		return ir.U32, 4, high, nil
	case "PUNPCKLQDQ":
		return ir.U64, 2, high, nil
	default:
		return ir.Type{}, 0, false, errors.Errorf("punpck: unhandled mnemonic %q", op)
	}
}
