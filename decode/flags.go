package decode

import "github.com/hexlift/hexlift/ir"

// FlagAction is one of the four abstract dispositions a translator may
// take for each status flag it touches.
type FlagAction uint8

const (
	FlagIgnore FlagAction = iota
	FlagSet0
	FlagSet1
	FlagUpdate
)

// Flags bundles the six x86 status-flag dispositions WriteFlags takes.
// PF and AF have no companion port on arithmetic nodes (only
// zero/negative/overflow/carry exist); FlagUpdate for PF writes the zero
// port and FlagUpdate for AF writes the carry port, a simplification that
// does not compute true parity/adjust semantics.
type Flags struct {
	ZF, CF, OF, SF, PF, AF FlagAction
}

// flagSource is satisfied by every arithmetic/shift/atomic node kind that
// exposes the four companion flag ports.
type flagSource interface {
	Zero() *ir.Port
	Negative() *ir.Port
	Overflow() *ir.Port
	Carry() *ir.Port
}

// WriteFlags applies fl against the ports produced by src, a node that has
// already been constructed (e.g. the result of b.Add/b.Sub/b.Lsl/...).
func WriteFlags(b *ir.Builder, src flagSource, fl Flags) error {
	if err := applyFlag(b, FlagReg("ZF"), fl.ZF, src.Zero()); err != nil {
		return err
	}
	if err := applyFlag(b, FlagReg("CF"), fl.CF, src.Carry()); err != nil {
		return err
	}
	if err := applyFlag(b, FlagReg("OF"), fl.OF, src.Overflow()); err != nil {
		return err
	}
	if err := applyFlag(b, FlagReg("SF"), fl.SF, src.Negative()); err != nil {
		return err
	}
	// PF/AF: only constant dispositions are modeled precisely; Update
	// approximates parity-of-result with the zero flag's producing port so
	// that at least the common "PF is live but never branched on" case
	// costs nothing extra once dead-flag elimination runs.
	if err := applyFlag(b, FlagReg("PF"), fl.PF, src.Zero()); err != nil {
		return err
	}
	if err := applyFlag(b, FlagReg("AF"), fl.AF, src.Carry()); err != nil {
		return err
	}
	return nil
}

func applyFlag(b *ir.Builder, reg ir.Reg, action FlagAction, port *ir.Port) error {
	switch action {
	case FlagIgnore:
		return nil
	case FlagSet0:
		c, err := b.ConstInt(ir.U1, 0)
		if err != nil {
			return err
		}
		return b.WriteReg(reg, c)
	case FlagSet1:
		c, err := b.ConstInt(ir.U1, 1)
		if err != nil {
			return err
		}
		return b.WriteReg(reg, c)
	case FlagUpdate:
		if port == nil {
			return nil
		}
		return b.WriteReg(reg, port)
	}
	return nil
}

// FlagsFromConstant computes ZF/SF directly from a constant value, for
// translators whose result is known at lift time (the zeroing-xor idiom).
func FlagsFromConstant(b *ir.Builder, value uint64, width uint16, fl Flags) error {
	zf := value == 0
	signBit := uint64(1) << (width - 1)
	sf := width > 0 && value&signBit != 0
	if err := setConstFlag(b, FlagReg("ZF"), fl.ZF, zf); err != nil {
		return err
	}
	return setConstFlag(b, FlagReg("SF"), fl.SF, sf)
}

func setConstFlag(b *ir.Builder, reg ir.Reg, action FlagAction, val bool) error {
	if action == FlagIgnore {
		return nil
	}
	bit := uint64(0)
	if val {
		bit = 1
	}
	switch action {
	case FlagSet0:
		bit = 0
	case FlagSet1:
		bit = 1
	}
	c, err := b.ConstInt(ir.U1, bit)
	if err != nil {
		return err
	}
	return b.WriteReg(reg, c)
}
