package decode

import "fmt"

// gprInfo describes one x86asm.Reg name as a (64-bit base offset, width,
// high-byte) triple, so that every accessor of a given GPR ("RAX", "EAX",
// "AX", "AL", "AH") resolves to the same underlying 64-bit slot with the
// x86-64 partial-write aliasing rules.
type gprInfo struct {
	offset  uint32
	width   uint16
	isHigh8 bool
}

var gprByName = buildGPRTable()

func buildGPRTable() map[string]gprInfo {
	t := make(map[string]gprInfo)
	type fam struct {
		r64, r32, r16, low8, high8 string
		offset                     uint32
	}
	fams := []fam{
		{"RAX", "EAX", "AX", "AL", "AH", offRAX},
		{"RCX", "ECX", "CX", "CL", "CH", offRCX},
		{"RDX", "EDX", "DX", "DL", "DH", offRDX},
		{"RBX", "EBX", "BX", "BL", "BH", offRBX},
	}
	for _, f := range fams {
		t[f.r64] = gprInfo{f.offset, 64, false}
		t[f.r32] = gprInfo{f.offset, 32, false}
		t[f.r16] = gprInfo{f.offset, 16, false}
		t[f.low8] = gprInfo{f.offset, 8, false}
		t[f.high8] = gprInfo{f.offset, 8, true}
	}
	type fam2 struct {
		r64, r32, r16, r8 string
		offset            uint32
	}
	fams2 := []fam2{
		{"RSP", "ESP", "SP", "SPB", offRSP},
		{"RBP", "EBP", "BP", "BPB", offRBP},
		{"RSI", "ESI", "SI", "SIB", offRSI},
		{"RDI", "EDI", "DI", "DIB", offRDI},
	}
	for _, f := range fams2 {
		t[f.r64] = gprInfo{f.offset, 64, false}
		t[f.r32] = gprInfo{f.offset, 32, false}
		t[f.r16] = gprInfo{f.offset, 16, false}
		t[f.r8] = gprInfo{f.offset, 8, false}
	}
	r8Offsets := [8]uint32{offR8, offR9, offR10, offR11, offR12, offR13, offR14, offR15}
	for i, off := range r8Offsets {
		n := i + 8
		t[fmt.Sprintf("R%d", n)] = gprInfo{off, 64, false}
		t[fmt.Sprintf("R%dL", n)] = gprInfo{off, 32, false}
		t[fmt.Sprintf("R%dW", n)] = gprInfo{off, 16, false}
		t[fmt.Sprintf("R%dB", n)] = gprInfo{off, 8, false}
	}
	return t
}

// lookupGPR resolves a decoded register name (as returned by x86asm.Reg's
// String method) to its CPU-state slot info, and ok=false if name does not
// name a GPR (e.g. it is an XMM register or flag).
func lookupGPR(name string) (gprInfo, bool) {
	i, ok := gprByName[name]
	return i, ok
}
