package lift

import (
	"github.com/pkg/errors"

	"github.com/hexlift/hexlift/decode"
)

// translateUnop handles the single-operand ALU group. INC/DEC update every
// status flag except CF (which they architecturally preserve); NEG is a
// subtraction from zero with full flag update, its CF set iff the operand
// was non-zero, which falls out of the borrow; NOT touches no flags at all.
func translateUnop(e *decode.Env) (Result, error) {
	b := e.B
	destTyp := e.OperandType(0)
	in, err := e.ReadOperand(0, destTyp)
	if err != nil {
		return Fail, err
	}

	switch e.Inst.Op.String() {
	case "INC", "DEC":
		one, err := b.ConstInt(destTyp, 1)
		if err != nil {
			return Fail, err
		}
		r, err := b.Add(in, one)
		if e.Inst.Op.String() == "DEC" {
			r, err = b.Sub(in, one)
		}
		if err != nil {
			return Fail, err
		}
		if err := decode.WriteFlags(b, r, decode.Flags{
			ZF: decode.FlagUpdate, SF: decode.FlagUpdate, OF: decode.FlagUpdate,
			PF: decode.FlagUpdate, AF: decode.FlagUpdate, CF: decode.FlagIgnore,
		}); err != nil {
			return Fail, err
		}
		return writeResult(e, r.Result)

	case "NEG":
		zero, err := b.ConstInt(destTyp, 0)
		if err != nil {
			return Fail, err
		}
		r, err := b.Sub(zero, in)
		if err != nil {
			return Fail, err
		}
		if err := decode.WriteFlags(b, r, decode.Flags{
			ZF: decode.FlagUpdate, CF: decode.FlagUpdate, OF: decode.FlagUpdate,
			SF: decode.FlagUpdate, PF: decode.FlagUpdate, AF: decode.FlagUpdate,
		}); err != nil {
			return Fail, err
		}
		return writeResult(e, r.Result)

	case "NOT":
		r, err := b.Bnot(in)
		if err != nil {
			return Fail, err
		}
		return writeResult(e, r.Result)

	default:
		return Fail, errors.Errorf("unop: unhandled mnemonic %q", e.Inst.Op.String())
	}
}
