package decode

import (
	"github.com/pkg/errors"

	"github.com/hexlift/hexlift/ir"
)

// x87 register-stack layout in the CPU-state record: after the status,
// control, tag, and stack-top slots come eight 16-byte slots, one per
// physical x87 register. ST(i) names the physical slot (top + i) mod 8,
// where top lives in the stack-top field; the tag word carries two bits per
// physical slot (00 = valid, 11 = empty).
const (
	offX87Regs   = offX87Stack + 8
	x87SlotBytes = 16
	x87TagEmpty  = 0b11
	x87TagValid  = 0b00
)

// X87StatusReg / X87ControlReg / X87TagReg / X87TopReg name the x87
// bookkeeping slots.
var (
	X87StatusReg  = ir.Reg{Offset: offX87Status, Name: "FPU_STATUS"}
	X87ControlReg = ir.Reg{Offset: offX87Ctrl, Name: "FPU_CONTROL"}
	X87TagReg     = ir.Reg{Offset: offX87Tag, Name: "FPU_TAG"}
	X87TopReg     = ir.Reg{Offset: offX87Stack, Name: "FPU_TOP"}
)

// X87SlotReg names physical x87 slot i (not ST(i); the stack-relative
// mapping goes through the top-of-stack index).
func X87SlotReg(i int) ir.Reg {
	return ir.Reg{Offset: uint32(offX87Regs + i*x87SlotBytes), Name: "FPR" + string(rune('0'+i))}
}

// X87 drives x87 stack indexing for one instruction's translation: it
// caches the top-of-stack value so a translator touching several ST(i)
// operands reads the index once.
type X87 struct {
	b   *ir.Builder
	top *ir.Port
}

// NewX87 reads the current top-of-stack index for use by the ST accessors.
func NewX87(b *ir.Builder) (*X87, error) {
	top, err := b.ReadReg(X87TopReg, ir.U64)
	if err != nil {
		return nil, err
	}
	return &X87{b: b, top: top}, nil
}

// physIndex produces (top + i) & 7 as an IR value.
func (x *X87) physIndex(i int) (*ir.Port, error) {
	b := x.b
	if i == 0 {
		return maskMod8(b, x.top)
	}
	off, err := b.ConstU64(uint64(i))
	if err != nil {
		return nil, err
	}
	sum, err := b.Add(x.top, off)
	if err != nil {
		return nil, err
	}
	return maskMod8(b, sum.Result)
}

func maskMod8(b *ir.Builder, v *ir.Port) (*ir.Port, error) {
	seven, err := b.ConstU64(7)
	if err != nil {
		return nil, err
	}
	masked, err := b.Band(v, seven)
	if err != nil {
		return nil, err
	}
	return masked.Result, nil
}

// ReadST reads ST(i) as an f80 value. The physical slot index is only known
// at run time, and read_reg takes a static offset, so the read resolves via
// a select chain over the eight slots keyed on the computed index — the same
// shape the shuffle translator uses for data-dependent lane picks.
func (x *X87) ReadST(i int) (*ir.Port, error) {
	b := x.b
	idx, err := x.physIndex(i)
	if err != nil {
		return nil, err
	}
	var result *ir.Port
	for slot := 0; slot < 8; slot++ {
		v, err := b.ReadReg(X87SlotReg(slot), ir.F80)
		if err != nil {
			return nil, err
		}
		if slot == 0 {
			result = v
			continue
		}
		slotConst, err := b.ConstU64(uint64(slot))
		if err != nil {
			return nil, err
		}
		match, err := b.CmpEq(idx, slotConst)
		if err != nil {
			return nil, err
		}
		sel, err := b.CSelect(match.Result, v, result)
		if err != nil {
			return nil, err
		}
		result = sel.Result
	}
	return result, nil
}

// WriteST stores value into ST(i): every physical slot is rewritten with
// either its old value or the new one depending on the computed index, the
// write-side dual of ReadST's select chain.
func (x *X87) WriteST(i int, value *ir.Port) error {
	b := x.b
	if value.Type() != ir.F80 {
		return errors.Errorf("x87: ST store requires f80, got %s", value.Type())
	}
	idx, err := x.physIndex(i)
	if err != nil {
		return err
	}
	for slot := 0; slot < 8; slot++ {
		old, err := b.ReadReg(X87SlotReg(slot), ir.F80)
		if err != nil {
			return err
		}
		slotConst, err := b.ConstU64(uint64(slot))
		if err != nil {
			return err
		}
		match, err := b.CmpEq(idx, slotConst)
		if err != nil {
			return err
		}
		sel, err := b.CSelect(match.Result, value, old)
		if err != nil {
			return err
		}
		if err := b.WriteReg(X87SlotReg(slot), sel.Result); err != nil {
			return err
		}
	}
	return nil
}

// Push decrements the top-of-stack index (the x87 stack grows downward
// through the physical slots) and marks the new top slot valid in the tag
// word. The caller stores the pushed value via WriteST(0) afterwards.
func (x *X87) Push() error {
	return x.adjustTop(-1, x87TagValid)
}

// Pop marks the current top slot empty and increments the index.
func (x *X87) Pop() error {
	return x.adjustTop(1, x87TagEmpty)
}

func (x *X87) adjustTop(delta int, tag uint64) error {
	b := x.b
	one, err := b.ConstU64(1)
	if err != nil {
		return err
	}
	var stepped *ir.BinaryArith
	if delta < 0 {
		stepped, err = b.Sub(x.top, one)
	} else {
		stepped, err = b.Add(x.top, one)
	}
	if err != nil {
		return err
	}
	newTop, err := maskMod8(b, stepped.Result)
	if err != nil {
		return err
	}
	// On push, the slot being tagged is the new top; on pop, the old one.
	tagIdx := x.top
	if delta < 0 {
		tagIdx = newTop
	}
	if err := x.setTag(tagIdx, tag); err != nil {
		return err
	}
	if err := b.WriteReg(X87TopReg, newTop); err != nil {
		return err
	}
	x.top = newTop
	return nil
}

// setTag rewrites physical slot idx's two tag bits: tagWord = (tagWord &^
// (3 << 2*idx)) | (tag << 2*idx), with the shift amounts computed at run
// time from the dynamic index.
func (x *X87) setTag(idx *ir.Port, tag uint64) error {
	b := x.b
	tagWord, err := b.ReadReg(X87TagReg, ir.U64)
	if err != nil {
		return err
	}
	two, err := b.ConstU64(2)
	if err != nil {
		return err
	}
	shiftAmt, err := b.Mul(idx, two)
	if err != nil {
		return err
	}
	three, err := b.ConstU64(3)
	if err != nil {
		return err
	}
	mask, err := b.Lsl(three, shiftAmt.Result)
	if err != nil {
		return err
	}
	inverted, err := b.Bnot(mask.Result)
	if err != nil {
		return err
	}
	cleared, err := b.Band(tagWord, inverted.Result)
	if err != nil {
		return err
	}
	tagConst, err := b.ConstU64(tag)
	if err != nil {
		return err
	}
	tagBits, err := b.Lsl(tagConst, shiftAmt.Result)
	if err != nil {
		return err
	}
	merged, err := b.Bor(cleared.Result, tagBits.Result)
	if err != nil {
		return err
	}
	return b.WriteReg(X87TagReg, merged.Result)
}
