package lift

import (
	"github.com/pkg/errors"

	"github.com/hexlift/hexlift/decode"
	"github.com/hexlift/hexlift/ir"
)

// translateShuffle handles PSHUFD/PSHUFB: PSHUFD reads its
// 8-bit control immediate two bits at a time, each pair selecting one of the
// four source lanes for the corresponding destination lane; PSHUFB permutes
// bytes according to the low nibble of each control-vector byte, with the
// high bit of the control byte zeroing that destination lane.
func translateShuffle(e *decode.Env) (Result, error) {
	b := e.B
	switch e.Inst.Op.String() {
	case "PSHUFD":
		vecTyp, err := ir.Vector(ir.U32, 4)
		if err != nil {
			return Fail, err
		}
		src, err := e.ReadOperand(1, vecTyp)
		if err != nil {
			return Fail, err
		}
		ctrl, err := e.ReadOperand(2, ir.U8)
		if err != nil {
			return Fail, err
		}
		out, err := b.ConstInt(vecTyp, 0)
		if err != nil {
			return Fail, err
		}
		for lane := uint16(0); lane < 4; lane++ {
			sel, err := b.BitExtractBits(ctrl, lane*2, 2)
			if err != nil {
				return Fail, err
			}
			lv, err := laneSelect(b, src, vecTyp, sel)
			if err != nil {
				return Fail, err
			}
			out, err = b.VecInsert(out, lane, lv)
			if err != nil {
				return Fail, err
			}
		}
		return writeResult(e, out)

	case "PSHUFB":
		vecTyp, err := ir.Vector(ir.U8, 16)
		if err != nil {
			return Fail, err
		}
		src, err := e.ReadOperand(0, vecTyp)
		if err != nil {
			return Fail, err
		}
		ctrl, err := e.ReadOperand(1, vecTyp)
		if err != nil {
			return Fail, err
		}
		out := src
		for lane := uint16(0); lane < 16; lane++ {
			cbyte, err := b.VecExtract(ctrl, lane)
			if err != nil {
				return Fail, err
			}
			idx, err := b.BitExtractBits(cbyte, 0, 4)
			if err != nil {
				return Fail, err
			}
			lv, err := laneSelect(b, src, vecTyp, idx)
			if err != nil {
				return Fail, err
			}
			highBit, err := b.BitExtractBits(cbyte, 7, 1)
			if err != nil {
				return Fail, err
			}
			zeroByte, err := b.ConstInt(ir.U8, 0)
			if err != nil {
				return Fail, err
			}
			zeroBit, err := b.ConstInt(highBit.Type(), 0)
			if err != nil {
				return Fail, err
			}
			clearCond, err := b.CmpNe(highBit, zeroBit)
			if err != nil {
				return Fail, err
			}
			sel, err := b.CSelect(clearCond.Result, zeroByte, lv)
			if err != nil {
				return Fail, err
			}
			out, err = b.VecInsert(out, lane, sel.Result)
			if err != nil {
				return Fail, err
			}
		}
		return writeResult(e, out)

	default:
		return Fail, errors.Errorf("shuffle: unhandled mnemonic %q", e.Inst.Op.String())
	}
}

// laneSelect reads vector's lane index at runtime by building a select tree
// over its (small, fixed) lane count, since vector_extract requires a
// compile-time-constant index but PSHUFD/PSHUFB indices are data-dependent.
func laneSelect(b *ir.Builder, vector *ir.Port, vecTyp ir.Type, index *ir.Port) (*ir.Port, error) {
	count := vecTyp.ElementCount()
	var result *ir.Port
	for lane := uint16(0); lane < count; lane++ {
		lv, err := b.VecExtract(vector, lane)
		if err != nil {
			return nil, err
		}
		if lane == 0 {
			result = lv
			continue
		}
		laneConst, err := b.ConstInt(index.Type(), uint64(lane))
		if err != nil {
			return nil, err
		}
		match, err := b.CmpEq(index, laneConst)
		if err != nil {
			return nil, err
		}
		result, err = selectPort(b, match.Result, lv, result)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

func selectPort(b *ir.Builder, cond, t, f *ir.Port) (*ir.Port, error) {
	sel, err := b.CSelect(cond, t, f)
	if err != nil {
		return nil, err
	}
	return sel.Result, nil
}
