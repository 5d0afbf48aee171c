package lift

import (
	"github.com/pkg/errors"

	"github.com/hexlift/hexlift/decode"
	"github.com/hexlift/hexlift/ir"
)

// translateRep handles the string-op group: a REP/REPE/REPNE-prefixed
// string instruction becomes a labeled loop guarded by RCX and, for the
// compare/scan forms, by ZF, matching the prefix's repeat-while-equal
// semantics; the unprefixed forms translate to a single iteration.
func translateRep(e *decode.Env) (Result, error) {
	b := e.B
	rep, repne := stringPrefix(e)
	if !rep && !repne {
		return stringOp(e)
	}

	top := b.Label("rep_top")
	done := b.Label("rep_done")
	if err := b.PlaceLabel(top); err != nil {
		return Fail, err
	}

	rcx, err := b.ReadReg(decode.Reg64("RCX"), ir.U64)
	if err != nil {
		return Fail, err
	}
	zero, err := b.ConstU64(0)
	if err != nil {
		return Fail, err
	}
	rcxZero, err := b.CmpEq(rcx, zero)
	if err != nil {
		return Fail, err
	}
	if err := b.CondBrTo(rcxZero.Result, done); err != nil {
		return Fail, err
	}

	if _, err := stringOp(e); err != nil {
		return Fail, err
	}

	one, err := b.ConstU64(1)
	if err != nil {
		return Fail, err
	}
	newRcx, err := b.Sub(rcx, one)
	if err != nil {
		return Fail, err
	}
	if err := b.WriteReg(decode.Reg64("RCX"), newRcx.Result); err != nil {
		return Fail, err
	}

	if isCompareString(e) {
		zf, err := b.ReadReg(decode.FlagReg("ZF"), ir.U1)
		if err != nil {
			return Fail, err
		}
		wantZF, err := b.ConstInt(ir.U1, boolToBit(rep))
		if err != nil {
			return Fail, err
		}
		stop, err := b.CmpNe(zf, wantZF)
		if err != nil {
			return Fail, err
		}
		if err := b.CondBrTo(stop.Result, done); err != nil {
			return Fail, err
		}
	}

	if err := b.BrTo(top); err != nil {
		return Fail, err
	}
	if err := b.PlaceLabel(done); err != nil {
		return Fail, err
	}
	return Normal, nil
}

func boolToBit(v bool) uint64 {
	if v {
		return 1
	}
	return 0
}

// stringPrefix reports whether the instruction carries a REP (rep=true) or
// REPNE (repne=true) prefix byte.
func stringPrefix(e *decode.Env) (rep bool, repne bool) {
	for _, p := range e.Inst.Prefix {
		switch byte(p) & 0xFF {
		case 0xF3:
			rep = true
		case 0xF2:
			repne = true
		}
	}
	return
}

func isCompareString(e *decode.Env) bool {
	switch e.Inst.Op.String() {
	case "CMPSB", "SCASB":
		return true
	default:
		return false
	}
}

func stringOp(e *decode.Env) (Result, error) {
	b := e.B
	switch e.Inst.Op.String() {
	case "MOVSB":
		rsi, err := b.ReadReg(decode.Reg64("RSI"), ir.U64)
		if err != nil {
			return Fail, err
		}
		rdi, err := b.ReadReg(decode.Reg64("RDI"), ir.U64)
		if err != nil {
			return Fail, err
		}
		v, err := b.ReadMem(rsi, ir.U8)
		if err != nil {
			return Fail, err
		}
		if err := b.WriteMem(rdi, v); err != nil {
			return Fail, err
		}
		return Normal, advanceStringPtrs(b, true, true)

	case "STOSB":
		al, err := b.ReadReg(decode.Reg64("RAX"), ir.U8)
		if err != nil {
			return Fail, err
		}
		rdi, err := b.ReadReg(decode.Reg64("RDI"), ir.U64)
		if err != nil {
			return Fail, err
		}
		if err := b.WriteMem(rdi, al); err != nil {
			return Fail, err
		}
		return Normal, advanceStringPtrs(b, false, true)

	case "CMPSB":
		rsi, err := b.ReadReg(decode.Reg64("RSI"), ir.U64)
		if err != nil {
			return Fail, err
		}
		rdi, err := b.ReadReg(decode.Reg64("RDI"), ir.U64)
		if err != nil {
			return Fail, err
		}
		lhs, err := b.ReadMem(rsi, ir.U8)
		if err != nil {
			return Fail, err
		}
		rhs, err := b.ReadMem(rdi, ir.U8)
		if err != nil {
			return Fail, err
		}
		r, err := b.Sub(lhs, rhs)
		if err != nil {
			return Fail, err
		}
		if err := decode.WriteFlags(b, r, decode.Flags{
			ZF: decode.FlagUpdate, CF: decode.FlagUpdate, OF: decode.FlagUpdate,
			SF: decode.FlagUpdate, PF: decode.FlagUpdate, AF: decode.FlagUpdate,
		}); err != nil {
			return Fail, err
		}
		return Normal, advanceStringPtrs(b, true, true)

	case "SCASB":
		al, err := b.ReadReg(decode.Reg64("RAX"), ir.U8)
		if err != nil {
			return Fail, err
		}
		rdi, err := b.ReadReg(decode.Reg64("RDI"), ir.U64)
		if err != nil {
			return Fail, err
		}
		mem, err := b.ReadMem(rdi, ir.U8)
		if err != nil {
			return Fail, err
		}
		r, err := b.Sub(al, mem)
		if err != nil {
			return Fail, err
		}
		if err := decode.WriteFlags(b, r, decode.Flags{
			ZF: decode.FlagUpdate, CF: decode.FlagUpdate, OF: decode.FlagUpdate,
			SF: decode.FlagUpdate, PF: decode.FlagUpdate, AF: decode.FlagUpdate,
		}); err != nil {
			return Fail, err
		}
		return Normal, advanceStringPtrs(b, false, true)

	default:
		return Fail, errors.Errorf("rep: unhandled mnemonic %q", e.Inst.Op.String())
	}
}

// advanceStringPtrs increments RSI (if used) and RDI by one byte. DF-aware
// decrement is not modeled; this translator assumes DF=0, a documented
// simplification.
func advanceStringPtrs(b *ir.Builder, useSI, useDI bool) error {
	one, err := b.ConstU64(1)
	if err != nil {
		return err
	}
	if useSI {
		rsi, err := b.ReadReg(decode.Reg64("RSI"), ir.U64)
		if err != nil {
			return err
		}
		next, err := b.Add(rsi, one)
		if err != nil {
			return err
		}
		if err := b.WriteReg(decode.Reg64("RSI"), next.Result); err != nil {
			return err
		}
	}
	if useDI {
		rdi, err := b.ReadReg(decode.Reg64("RDI"), ir.U64)
		if err != nil {
			return err
		}
		next, err := b.Add(rdi, one)
		if err != nil {
			return err
		}
		if err := b.WriteReg(decode.Reg64("RDI"), next.Result); err != nil {
			return err
		}
	}
	return nil
}
