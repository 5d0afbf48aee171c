package lift

import (
	"github.com/pkg/errors"

	"github.com/hexlift/hexlift/decode"
	"github.com/hexlift/hexlift/ir"
)

// translateMulDiv handles multiply and divide: the 2/3-operand signed
// IMUL forms do an explicit double-width sign extension then truncate back
// down; the single-operand RDX:RAX forms (IMUL/MUL/DIV/IDIV) extract the
// low and high halves of a double-width result via bit_extract.
func translateMulDiv(e *decode.Env) (Result, error) {
	op := e.Inst.Op.String()
	nargs := numArgs(e)

	switch op {
	case "IMUL":
		switch nargs {
		case 2:
			destTyp := e.OperandType(0)
			lhs, err := e.ReadOperand(0, destTyp)
			if err != nil {
				return Fail, err
			}
			rhs, err := e.ReadOperand(1, destTyp)
			if err != nil {
				return Fail, err
			}
			return imul2or3(e, lhs, rhs, destTyp)
		case 3:
			destTyp := e.OperandType(0)
			lhs, err := e.ReadOperand(1, destTyp)
			if err != nil {
				return Fail, err
			}
			rhs, err := e.ReadOperand(2, destTyp)
			if err != nil {
				return Fail, err
			}
			return imul2or3(e, lhs, rhs, destTyp)
		default:
			return imulFull(e)
		}

	case "MUL":
		return mulFull(e, false)

	case "DIV":
		return divFull(e, false)

	case "IDIV":
		return divFull(e, true)

	default:
		return Fail, errors.Errorf("muldiv: unhandled mnemonic %q", op)
	}
}

func numArgs(e *decode.Env) int {
	n := 0
	for _, a := range e.Inst.Args {
		if a == nil {
			break
		}
		n++
	}
	return n
}

func widen(t ir.Type) (ir.Type, error) {
	return ir.NewInt(ir.ClassSignedInt, t.Width()*2)
}

func imul2or3(e *decode.Env, lhs, rhs *ir.Port, destTyp ir.Type) (Result, error) {
	b := e.B
	wide, err := widen(destTyp)
	if err != nil {
		return Fail, err
	}
	lhsSigned, err := castSigned(b, lhs, destTyp)
	if err != nil {
		return Fail, err
	}
	rhsSigned, err := castSigned(b, rhs, destTyp)
	if err != nil {
		return Fail, err
	}
	lw, err := b.Sx(lhsSigned, wide)
	if err != nil {
		return Fail, err
	}
	rw, err := b.Sx(rhsSigned, wide)
	if err != nil {
		return Fail, err
	}
	prod, err := b.Mul(lw, rw)
	if err != nil {
		return Fail, err
	}
	truncated, err := b.Trunc(prod.Result, destTyp)
	if err != nil {
		return Fail, err
	}
	// CF/OF set iff the truncated low half, sign-extended back to the wide
	// type, does not reproduce the full product.
	reExt, err := b.Sx(truncated, wide)
	if err != nil {
		return Fail, err
	}
	overflowed, err := b.CmpNe(reExt, prod.Result)
	if err != nil {
		return Fail, err
	}
	if err := b.WriteReg(decode.FlagReg("CF"), overflowed.Result); err != nil {
		return Fail, err
	}
	if err := b.WriteReg(decode.FlagReg("OF"), overflowed.Result); err != nil {
		return Fail, err
	}
	return writeResult(e, truncated)
}

func castSigned(b *ir.Builder, v *ir.Port, typ ir.Type) (*ir.Port, error) {
	signedTyp, err := ir.NewInt(ir.ClassSignedInt, typ.Width())
	if err != nil {
		return nil, err
	}
	if v.Type() == signedTyp {
		return v, nil
	}
	return b.Bitcast(v, signedTyp)
}

func imulFull(e *decode.Env) (Result, error) { return mulFull(e, true) }

func mulFull(e *decode.Env, signed bool) (Result, error) {
	b := e.B
	srcTyp := e.OperandType(0)
	src, err := e.ReadOperand(0, srcTyp)
	if err != nil {
		return Fail, err
	}
	acc, err := b.ReadReg(decode.Reg64("RAX"), srcTyp)
	if err != nil {
		return Fail, err
	}
	class := ir.ClassUnsignedInt
	if signed {
		class = ir.ClassSignedInt
	}
	wide, err := ir.NewInt(class, srcTyp.Width()*2)
	if err != nil {
		return Fail, err
	}
	extend := b.Zx
	if signed {
		extend = b.Sx
	}
	accW, err := extend(acc, wide)
	if err != nil {
		return Fail, err
	}
	srcW, err := extend(src, wide)
	if err != nil {
		return Fail, err
	}
	prod, err := b.Mul(accW, srcW)
	if err != nil {
		return Fail, err
	}
	lo, err := b.BitExtractBits(prod.Result, 0, srcTyp.Width())
	if err != nil {
		return Fail, err
	}
	hi, err := b.BitExtractBits(prod.Result, srcTyp.Width(), srcTyp.Width())
	if err != nil {
		return Fail, err
	}
	if err := b.WriteReg(decode.Reg64("RAX"), lo); err != nil {
		return Fail, err
	}
	if err := b.WriteReg(decode.Reg64("RDX"), hi); err != nil {
		return Fail, err
	}
	return Normal, nil
}

func divFull(e *decode.Env, signed bool) (Result, error) {
	b := e.B
	srcTyp := e.OperandType(0)
	divisor, err := e.ReadOperand(0, srcTyp)
	if err != nil {
		return Fail, err
	}
	class := ir.ClassUnsignedInt
	if signed {
		class = ir.ClassSignedInt
	}
	wide, err := ir.NewInt(class, srcTyp.Width()*2)
	if err != nil {
		return Fail, err
	}
	lo, err := b.ReadReg(decode.Reg64("RAX"), srcTyp)
	if err != nil {
		return Fail, err
	}
	hi, err := b.ReadReg(decode.Reg64("RDX"), srcTyp)
	if err != nil {
		return Fail, err
	}
	hiW, err := b.Zx(hi, wide)
	if err != nil {
		return Fail, err
	}
	shiftAmt, err := b.ConstInt(wide, uint64(srcTyp.Width()))
	if err != nil {
		return Fail, err
	}
	hiShifted, err := b.Lsl(hiW, shiftAmt)
	if err != nil {
		return Fail, err
	}
	// Both halves are raw bit placement: RDX:RAX already is the 2n-bit
	// dividend, so lo must be zero-extended even for IDIV (sign-extending
	// it would smear its top bit over the bits RDX supplies). Only the
	// final wide-typed divide interprets the pattern as signed, and only
	// the single-width divisor gets a sign extension.
	loWide, err := b.Zx(lo, wide)
	if err != nil {
		return Fail, err
	}
	dividend, err := b.Bor(hiShifted.Result, loWide)
	if err != nil {
		return Fail, err
	}
	extend := b.Zx
	if signed {
		extend = b.Sx
	}
	divisorWide, err := extend(divisor, wide)
	if err != nil {
		return Fail, err
	}
	quot, err := b.Div(dividend.Result, divisorWide)
	if err != nil {
		return Fail, err
	}
	rem, err := b.Mod(dividend.Result, divisorWide)
	if err != nil {
		return Fail, err
	}
	quotNarrow, err := b.Trunc(quot.Result, srcTyp)
	if err != nil {
		return Fail, err
	}
	remNarrow, err := b.Trunc(rem.Result, srcTyp)
	if err != nil {
		return Fail, err
	}
	if err := b.WriteReg(decode.Reg64("RAX"), quotNarrow); err != nil {
		return Fail, err
	}
	if err := b.WriteReg(decode.Reg64("RDX"), remNarrow); err != nil {
		return Fail, err
	}
	return Normal, nil
}
