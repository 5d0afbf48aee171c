// Package arm64 implements the AArch64 instruction builder: one method per
// machine instruction, plus a direct encoder in place of an external
// assembler.
package arm64

import "github.com/hexlift/hexlift/host"

// X0..X30 name the 64-bit general-purpose registers; XZR is the hard-wired
// zero register; SP is the stack pointer. See
// https://developer.arm.com/documentation/dui0801/a/Overview-of-AArch64-state
const (
	X0 host.RealReg = iota
	X1
	X2
	X3
	X4
	X5
	X6
	X7
	X8
	X9
	X10
	X11
	X12
	X13
	X14
	X15
	X16
	X17
	X18
	X19
	X20
	X21
	X22
	X23
	X24
	X25
	X26
	X27
	X28
	X29 // frame pointer / CPU-state base in this translator's convention.
	X30 // link register.
	SP
	XZR
)

// V0..V31 name the 128-bit vector/floating-point registers.
const (
	V0 host.RealReg = iota + 100
	V1
	V2
	V3
	V4
	V5
	V6
	V7
	V8
	V9
	V10
	V11
	V12
	V13
	V14
	V15
	V16
	V17
	V18
	V19
	V20
	V21
	V22
	V23
	V24
	V25
	V26
	V27
	V28
	V29
	V30
	V31
)

// Config returns the host.Config describing AArch64's allocatable registers
// and this translator's reserved-register convention: X29 holds the CPU
// state base pointer, X30 the link register, SP the stack pointer, and X0
// through X28 except X18 are left to the allocator for guest-value vregs
// (X18 is the platform register on some ABIs; excluding it keeps this
// backend portable at the cost of one fewer int register).
func Config() host.Config {
	ints := make([]host.RealReg, 0, 27)
	for r := X0; r <= X28; r++ {
		if r == X18 {
			continue
		}
		ints = append(ints, r)
	}
	floats := make([]host.RealReg, 0, 32)
	for r := V0; r <= V31; r++ {
		floats = append(floats, r)
	}
	return host.Config{
		IntRegs:   ints,
		FloatRegs: floats,
		SP:        SP,
		FP:        X29,
		LR:        X30,
		Zero:      XZR,
	}
}

// ZeroVReg returns a pre-colored vreg naming the hard-wired zero register:
// the allocator (host.Allocator) recognizes any vreg that already carries a
// RealReg and leaves it pinned rather than drawing from the free pool.
func ZeroVReg() host.VReg { return host.NewVReg(0, host.ClassInt).WithRealReg(XZR) }

// StateVReg returns a pre-colored vreg naming the CPU-state base pointer
// (the frame pointer, X29, in this translator's convention).
func StateVReg() host.VReg { return host.NewVReg(0, host.ClassInt).WithRealReg(X29) }

// LRVReg returns a pre-colored vreg naming the link register.
func LRVReg() host.VReg { return host.NewVReg(0, host.ClassInt).WithRealReg(X30) }

func condName(c host.Cond) string {
	switch c {
	case host.CondEQ:
		return "eq"
	case host.CondNE:
		return "ne"
	case host.CondLT:
		return "lt"
	case host.CondLE:
		return "le"
	case host.CondGT:
		return "gt"
	case host.CondGE:
		return "ge"
	case host.CondLO:
		return "lo"
	case host.CondLS:
		return "ls"
	case host.CondHI:
		return "hi"
	case host.CondHS:
		return "hs"
	case host.CondVS:
		return "vs"
	case host.CondVC:
		return "vc"
	case host.CondMI:
		return "mi"
	case host.CondPL:
		return "pl"
	default:
		return "al"
	}
}
