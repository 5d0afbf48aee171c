package decode

import (
	"github.com/pkg/errors"
	"golang.org/x/arch/x86/x86asm"

	"github.com/hexlift/hexlift/ir"
)

// Env carries everything a translator needs to turn one decoded
// instruction's operands into IR: the builder, the instruction's guest
// address and length (for RIP-relative addressing and fallthrough targets),
// and the decoded instruction itself.
type Env struct {
	B    *ir.Builder
	Inst x86asm.Inst
	Addr uint64
	Len  int
}

// NextAddr returns the address of the instruction following this one.
func (e *Env) NextAddr() uint64 { return e.Addr + uint64(e.Len) }

// OperandType infers the IR value type of decoded argument i: a GPR or XMM
// register's own width, a memory operand's width per the decoded
// MemBytes/DataSize, or an immediate/relative operand sized to match the
// instruction's other (register) operand. Translators use this to decide
// the width pure arithmetic and casts should operate at.
func (e *Env) OperandType(i int) ir.Type {
	arg := e.Inst.Args[i]
	switch a := arg.(type) {
	case x86asm.Reg:
		name := a.String()
		if gi, ok := lookupGPR(name); ok {
			return mustIntType(gi.width)
		}
		if _, ok := xmmOffsetByName(name); ok {
			return ir.U128
		}
		if _, ok := flagOffsets[name]; ok {
			return ir.U1
		}
		return ir.U64
	case x86asm.Mem:
		if e.Inst.MemBytes > 0 {
			return mustIntType(uint16(e.Inst.MemBytes) * 8)
		}
		return ir.U64
	default:
		// Immediate/relative: size to the instruction's data width when
		// known, defaulting to 32 bits (the common x86-64 immediate size).
		if e.Inst.DataSize > 0 {
			return mustIntType(uint16(e.Inst.DataSize))
		}
		return ir.U32
	}
}

func xmmOffsetByName(name string) (uint32, bool) {
	if len(name) < 4 || name[:3] != "XMM" {
		return 0, false
	}
	n := 0
	for _, c := range name[3:] {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	if n < 0 || n > 15 {
		return 0, false
	}
	return XMMReg(n).Offset, true
}

// ReadOperand reads decoded argument i as an IR value of the given type.
func (e *Env) ReadOperand(i int, typ ir.Type) (*ir.Port, error) {
	arg := e.Inst.Args[i]
	if arg == nil {
		return nil, errors.Errorf("read_operand: no operand at index %d", i)
	}
	switch a := arg.(type) {
	case x86asm.Reg:
		return e.readReg(a.String(), typ)
	case x86asm.Mem:
		addr, err := e.ComputeAddress(a)
		if err != nil {
			return nil, err
		}
		return e.B.ReadMem(addr, typ)
	case x86asm.Imm:
		return e.B.ConstInt(typ, uint64(int64(a)))
	case x86asm.Rel:
		target := e.NextAddr() + uint64(int64(a))
		return e.B.ConstInt(typ, target)
	default:
		return nil, errors.Errorf("read_operand: unsupported operand kind %T", arg)
	}
}

func (e *Env) readReg(name string, typ ir.Type) (*ir.Port, error) {
	if gi, ok := lookupGPR(name); ok {
		full, err := e.B.ReadReg(ir.Reg{Offset: gi.offset, Name: name}, ir.U64)
		if err != nil {
			return nil, err
		}
		if gi.width == 64 {
			return castTo(e.B, full, typ)
		}
		var offset uint16
		if gi.isHigh8 {
			offset = 8
		}
		bits, err := e.B.BitExtractBits(full, offset, gi.width)
		if err != nil {
			return nil, err
		}
		return castTo(e.B, bits, typ)
	}
	if off, ok := xmmOffsetByName(name); ok {
		full, err := e.B.ReadReg(ir.Reg{Offset: off, Name: name}, ir.U128)
		if err != nil {
			return nil, err
		}
		return castTo(e.B, full, typ)
	}
	if off, ok := flagOffsets[name]; ok {
		return e.B.ReadReg(ir.Reg{Offset: off, Name: name}, ir.U1)
	}
	return nil, errors.Errorf("read_operand: unrecognized register %q", name)
}

// castTo bitcasts/truncates/zero-extends v to typ when widths differ,
// matching the decoder's general rule of auto-casting operands to the
// operation's declared type.
func castTo(b *ir.Builder, v *ir.Port, typ ir.Type) (*ir.Port, error) {
	if v.Type() == typ {
		return v, nil
	}
	if v.Type().Width() == typ.Width() {
		return b.Bitcast(v, typ)
	}
	if v.Type().Width() > typ.Width() {
		return b.Trunc(v, typ)
	}
	return b.Zx(v, typ)
}

// WriteOperand writes value into decoded argument i, applying the x86-64
// partial-register aliasing rules for GPR destinations.
func (e *Env) WriteOperand(i int, value *ir.Port) error {
	arg := e.Inst.Args[i]
	if arg == nil {
		return errors.Errorf("write_operand: no operand at index %d", i)
	}
	switch a := arg.(type) {
	case x86asm.Reg:
		return e.writeReg(a.String(), value)
	case x86asm.Mem:
		addr, err := e.ComputeAddress(a)
		if err != nil {
			return err
		}
		return e.B.WriteMem(addr, value)
	default:
		return errors.Errorf("write_operand: destination kind %T is not writable", arg)
	}
}

func (e *Env) writeReg(name string, value *ir.Port) error {
	if gi, ok := lookupGPR(name); ok {
		reg := ir.Reg{Offset: gi.offset, Name: name}
		switch gi.width {
		case 64:
			v, err := castTo(e.B, value, ir.U64)
			if err != nil {
				return err
			}
			return e.B.WriteReg(reg, v)
		case 32:
			// A 32-bit write zeros bits [63:32] of the slot: this falls out
			// naturally from a zero-extending cast to u64.
			v, err := castTo(e.B, value, ir.U32)
			if err != nil {
				return err
			}
			wide, err := e.B.Zx(v, ir.U64)
			if err != nil {
				return err
			}
			return e.B.WriteReg(reg, wide)
		default: // 16 or 8 bits: preserve the untouched bits via bit_insert.
			v, err := castTo(e.B, value, mustIntType(gi.width))
			if err != nil {
				return err
			}
			full, err := e.B.ReadReg(reg, ir.U64)
			if err != nil {
				return err
			}
			var offset uint16
			if gi.isHigh8 {
				offset = 8
			}
			vWide, err := e.B.Zx(v, ir.U64)
			if err != nil {
				return err
			}
			merged, err := e.B.BitInsertBits(full, vWide, offset, gi.width)
			if err != nil {
				return err
			}
			return e.B.WriteReg(reg, merged)
		}
	}
	if off, ok := xmmOffsetByName(name); ok {
		v, err := castTo(e.B, value, ir.U128)
		if err != nil {
			return err
		}
		return e.B.WriteReg(ir.Reg{Offset: off, Name: name}, v)
	}
	if off, ok := flagOffsets[name]; ok {
		return e.B.WriteReg(ir.Reg{Offset: off, Name: name}, value)
	}
	return errors.Errorf("write_operand: unrecognized register %q", name)
}

func mustIntType(width uint16) ir.Type {
	t, _ := ir.NewInt(ir.ClassUnsignedInt, width)
	return t
}

// EffectiveAddress computes the address decoded argument i would resolve to
// without dereferencing it, for LEA. It errors if argument i is not a memory
// operand.
func (e *Env) EffectiveAddress(i int) (*ir.Port, error) {
	m, ok := e.Inst.Args[i].(x86asm.Mem)
	if !ok {
		return nil, errors.Errorf("effective_address: operand %d is not a memory operand (%T)", i, e.Inst.Args[i])
	}
	return e.ComputeAddress(m)
}

// ComputeAddress implements the x86 effective-address formula
// base + (index << log2(scale)) + displacement + segment_base, with
// RIP-relative resolved against pc + instruction_length + displacement.
func (e *Env) ComputeAddress(m x86asm.Mem) (*ir.Port, error) {
	b := e.B
	baseName := m.Base.String()
	if baseName == "RIP" || baseName == "EIP" {
		target := e.NextAddr() + uint64(m.Disp)
		return b.ConstU64(target)
	}

	var acc *ir.Port
	var err error
	if baseName != "" && baseName != "0" {
		acc, err = e.readReg(baseName, ir.U64)
		if err != nil {
			return nil, err
		}
	} else {
		acc, err = b.ConstU64(0)
		if err != nil {
			return nil, err
		}
	}

	idxName := m.Index.String()
	if idxName != "" && idxName != "0" && m.Scale > 0 {
		idx, err := e.readReg(idxName, ir.U64)
		if err != nil {
			return nil, err
		}
		scaleAmt, err := b.ConstU64(uint64(log2(uint8(m.Scale))))
		if err != nil {
			return nil, err
		}
		scaled, err := b.Lsl(idx, scaleAmt)
		if err != nil {
			return nil, err
		}
		sum, err := b.Add(acc, scaled.Result)
		if err != nil {
			return nil, err
		}
		acc = sum.Result
	}

	if m.Disp != 0 {
		dispConst, err := b.ConstU64(uint64(m.Disp))
		if err != nil {
			return nil, err
		}
		sum, err := b.Add(acc, dispConst)
		if err != nil {
			return nil, err
		}
		acc = sum.Result
	}

	segName := m.Segment.String()
	if segName == "FS" || segName == "GS" {
		base := FSBase
		if segName == "GS" {
			base = GSBase
		}
		segVal, err := b.ReadReg(base, ir.U64)
		if err != nil {
			return nil, err
		}
		sum, err := b.Add(acc, segVal)
		if err != nil {
			return nil, err
		}
		acc = sum.Result
	}

	return acc, nil
}

func log2(scale uint8) uint8 {
	switch scale {
	case 1:
		return 0
	case 2:
		return 1
	case 4:
		return 2
	case 8:
		return 3
	default:
		return 0
	}
}
