package lift_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hexlift/hexlift/decode"
	"github.com/hexlift/hexlift/ir"
	"github.com/hexlift/hexlift/lift"
)

// liftBytes decodes and translates one straight-line blob into a chunk,
// stopping after the first end-of-block packet, the same loop shape the
// cmd/hexliftc driver uses.
func liftBytes(t *testing.T, data []byte, base uint64) *ir.Chunk {
	t.Helper()
	b := ir.NewBuilder()
	chunk := b.BeginChunk("test_blob")
	dec := decode.NewDecoder(data, base)
	for !dec.Done() {
		inst, addr, length, err := dec.Next()
		require.NoError(t, err)
		require.NoError(t, b.BeginPacket(addr, inst.String()))
		env := &decode.Env{B: b, Inst: inst, Addr: addr, Len: length}
		result, err := lift.Translate(env)
		require.NoError(t, err)
		packetResult, err := b.EndPacket()
		require.NoError(t, err)
		if result == lift.EndOfBlock || packetResult == ir.PacketEndOfBlock {
			break
		}
	}
	b.EndChunk()
	return chunk
}

var (
	rax = decode.Reg64("RAX")
	rbx = decode.Reg64("RBX")
	rdx = decode.Reg64("RDX")
	rcx = decode.Reg64("RCX")
	rsi = decode.Reg64("RSI")
	rdi = decode.Reg64("RDI")
	rsp = decode.Reg64("RSP")
	zf  = decode.FlagReg("ZF")
	cf  = decode.FlagReg("CF")
	of  = decode.FlagReg("OF")
	sf  = decode.FlagReg("SF")
)

func TestXorRaxRaxClearsAndSetsFlags(t *testing.T) {
	// 48 31 c0 = xor rax, rax
	chunk := liftBytes(t, []byte{0x48, 0x31, 0xc0}, 0x400000)
	m := newMachine(t)
	m.setReg(rax, 0xdead)
	m.run(chunk)
	require.EqualValues(t, 0, m.reg(rax))
	require.EqualValues(t, 1, m.reg(zf))
	require.EqualValues(t, 0, m.reg(cf))
	require.EqualValues(t, 0, m.reg(of))
	require.EqualValues(t, 0, m.reg(sf))
}

func TestAddEaxWrapsAndZeroExtends(t *testing.T) {
	// 83 c0 01 = add eax, 1
	chunk := liftBytes(t, []byte{0x83, 0xc0, 0x01}, 0x400000)
	m := newMachine(t)
	m.setReg(rax, 0xffffffff)
	m.run(chunk)
	require.EqualValues(t, 0, m.reg(rax), "32-bit result must zero-extend over the full slot")
	require.EqualValues(t, 1, m.reg(zf))
	require.EqualValues(t, 1, m.reg(cf))
	require.EqualValues(t, 0, m.reg(of))
}

func TestCmpThenJbTaken(t *testing.T) {
	// 3c 10 = cmp al, 0x10 ; 72 08 = jb +8
	data := []byte{0x3c, 0x10, 0x72, 0x08}
	const base = 0x400000
	chunk := liftBytes(t, data, base)
	m := newMachine(t)
	m.setReg(rax, 0x0f)
	m.run(chunk)
	require.EqualValues(t, 1, m.reg(cf))
	require.EqualValues(t, base+uint64(len(data))+8, m.reg(decode.PCReg))
}

func TestCmpThenJbNotTaken(t *testing.T) {
	data := []byte{0x3c, 0x10, 0x72, 0x08}
	const base = 0x400000
	chunk := liftBytes(t, data, base)
	m := newMachine(t)
	m.setReg(rax, 0x20)
	m.run(chunk)
	require.EqualValues(t, 0, m.reg(cf))
	require.EqualValues(t, base+uint64(len(data)), m.reg(decode.PCReg))
}

func TestEmulatedRetSequence(t *testing.T) {
	// 48 8b 04 24 = mov rax, [rsp] ; 48 83 c4 08 = add rsp, 8 ;
	// ff e0 = jmp rax
	data := []byte{0x48, 0x8b, 0x04, 0x24, 0x48, 0x83, 0xc4, 0x08, 0xff, 0xe0}
	chunk := liftBytes(t, data, 0x400000)
	m := newMachine(t)
	m.setReg(rsp, 0x7ff0)
	m.store64(0x7ff0, 0xcafe)
	m.run(chunk)
	require.EqualValues(t, 0xcafe, m.reg(decode.PCReg))
	require.EqualValues(t, 0x7ff8, m.reg(rsp))
}

func TestImulRaxRbx(t *testing.T) {
	// 48 0f af c3 = imul rax, rbx
	chunk := liftBytes(t, []byte{0x48, 0x0f, 0xaf, 0xc3}, 0x400000)
	m := newMachine(t)
	m.setReg(rax, 3)
	m.setReg(rbx, 7)
	m.run(chunk)
	require.EqualValues(t, 21, m.reg(rax))
	require.EqualValues(t, 0, m.reg(cf))
	require.EqualValues(t, 0, m.reg(of))
}

func TestImulOverflowSetsCarry(t *testing.T) {
	chunk := liftBytes(t, []byte{0x48, 0x0f, 0xaf, 0xc3}, 0x400000)
	m := newMachine(t)
	m.setReg(rax, 0x4000000000000000)
	m.setReg(rbx, 4)
	m.run(chunk)
	require.EqualValues(t, 0, m.reg(rax))
	require.EqualValues(t, 1, m.reg(cf))
	require.EqualValues(t, 1, m.reg(of))
}

func TestDivProducesQuotientAndRemainder(t *testing.T) {
	// f7 f3 = div ebx
	chunk := liftBytes(t, []byte{0xf7, 0xf3}, 0x400000)
	m := newMachine(t)
	m.setReg(rdx, 0)
	m.setReg(rax, 100)
	m.setReg(rbx, 7)
	m.run(chunk)
	require.EqualValues(t, 14, m.reg(rax))
	require.EqualValues(t, 2, m.reg(rdx))
}

func TestIdivAsymmetricHighLow(t *testing.T) {
	// f7 fb = idiv ebx. EDX:EAX = 0:0x80000000 is the positive dividend
	// 2^31, not -2^31: the low half's top bit must not smear into the
	// bits the high half supplies.
	chunk := liftBytes(t, []byte{0xf7, 0xfb}, 0x400000)
	m := newMachine(t)
	m.setReg(rdx, 0)
	m.setReg(rax, 0x80000000)
	m.setReg(rbx, 2)
	m.run(chunk)
	require.EqualValues(t, 0x40000000, m.reg(rax))
	require.EqualValues(t, 0, m.reg(rdx))
}

func TestIdivNegativeDividend(t *testing.T) {
	// EDX:EAX = sign-extension of -7, as CDQ would leave it.
	chunk := liftBytes(t, []byte{0xf7, 0xfb}, 0x400000)
	m := newMachine(t)
	m.setReg(rdx, 0xffffffff)
	m.setReg(rax, 0xfffffff9)
	m.setReg(rbx, 2)
	m.run(chunk)
	require.EqualValues(t, 0xfffffffd, m.reg(rax), "quotient -3, zero-extended over the slot")
	require.EqualValues(t, 0xffffffff, m.reg(rdx), "remainder -1")
}

func TestLockCmpxchgSucceeds(t *testing.T) {
	// f0 48 0f b1 37 = lock cmpxchg [rdi], rsi
	chunk := liftBytes(t, []byte{0xf0, 0x48, 0x0f, 0xb1, 0x37}, 0x400000)
	m := newMachine(t)
	m.setReg(rdi, 0x8000)
	m.setReg(rax, 5)
	m.setReg(rsi, 9)
	m.store64(0x8000, 5)
	m.run(chunk)
	require.EqualValues(t, 9, m.load64(0x8000))
	require.EqualValues(t, 1, m.reg(zf))
	require.EqualValues(t, 5, m.reg(rax))
}

func TestLockCmpxchgFails(t *testing.T) {
	chunk := liftBytes(t, []byte{0xf0, 0x48, 0x0f, 0xb1, 0x37}, 0x400000)
	m := newMachine(t)
	m.setReg(rdi, 0x8000)
	m.setReg(rax, 4)
	m.setReg(rsi, 9)
	m.store64(0x8000, 5)
	m.run(chunk)
	require.EqualValues(t, 5, m.load64(0x8000), "memory unchanged on mismatch")
	require.EqualValues(t, 5, m.reg(rax), "accumulator receives the observed value")
	require.EqualValues(t, 0, m.reg(zf))
}

func TestLockAddMemory(t *testing.T) {
	// f0 01 07 = lock add [rdi], eax
	chunk := liftBytes(t, []byte{0xf0, 0x01, 0x07}, 0x400000)
	m := newMachine(t)
	m.setReg(rdi, 0x9000)
	m.setReg(rax, 0x10)
	m.writeMemU32(0x9000, 0x20)
	m.run(chunk)
	require.EqualValues(t, 0x30, m.readMem(0x9000, 4).Uint64())
	require.EqualValues(t, 0, m.reg(zf))
}

func TestMovALPreservesUpperBytes(t *testing.T) {
	// b0 7f = mov al, 0x7f
	chunk := liftBytes(t, []byte{0xb0, 0x7f}, 0x400000)
	m := newMachine(t)
	m.setReg(rax, 0x1122334455667788)
	m.run(chunk)
	require.EqualValues(t, uint64(0x112233445566777f), m.reg(rax))
}

func TestShlByOneSetsCarryAndOverflow(t *testing.T) {
	// c1 e0 01 = shl eax, 1
	chunk := liftBytes(t, []byte{0xc1, 0xe0, 0x01}, 0x400000)
	m := newMachine(t)
	m.setReg(rax, 0x80000001)
	m.run(chunk)
	require.EqualValues(t, 2, m.reg(rax))
	require.EqualValues(t, 1, m.reg(cf), "CF takes the last bit shifted out")
	require.EqualValues(t, 1, m.reg(of), "OF = CF^MSB for a single-bit left shift")
	require.EqualValues(t, 0, m.reg(zf))
}

func TestIncPreservesCarry(t *testing.T) {
	// ff c0 = inc eax
	chunk := liftBytes(t, []byte{0xff, 0xc0}, 0x400000)
	m := newMachine(t)
	m.setReg(rax, 0xffffffff)
	m.setReg(cf, 1)
	m.run(chunk)
	require.EqualValues(t, 0, m.reg(rax))
	require.EqualValues(t, 1, m.reg(zf))
	require.EqualValues(t, 1, m.reg(cf), "INC must not touch CF")
}

func TestNegSetsBorrow(t *testing.T) {
	// f7 d8 = neg eax
	chunk := liftBytes(t, []byte{0xf7, 0xd8}, 0x400000)
	m := newMachine(t)
	m.setReg(rax, 1)
	m.run(chunk)
	require.EqualValues(t, 0xffffffff, m.reg(rax))
	require.EqualValues(t, 1, m.reg(cf), "CF set iff the operand was non-zero")
	require.EqualValues(t, 1, m.reg(sf))
}

func TestLeaComputesEffectiveAddress(t *testing.T) {
	// 48 8d 44 8b 08 = lea rax, [rbx+rcx*4+8]
	chunk := liftBytes(t, []byte{0x48, 0x8d, 0x44, 0x8b, 0x08}, 0x400000)
	m := newMachine(t)
	m.setReg(rbx, 0x1000)
	m.setReg(rcx, 2)
	m.run(chunk)
	require.EqualValues(t, 0x1010, m.reg(rax))
}

func TestSetbWritesConditionByte(t *testing.T) {
	// 3c 10 = cmp al, 0x10 ; 0f 92 c0 = setb al
	chunk := liftBytes(t, []byte{0x3c, 0x10, 0x0f, 0x92, 0xc0}, 0x400000)
	m := newMachine(t)
	m.setReg(rax, 0xff0f)
	m.run(chunk)
	require.EqualValues(t, 0xff01, m.reg(rax), "SETcc writes only the low byte")
}

func TestCmovTakenAndNotTaken(t *testing.T) {
	// 48 39 d8 = cmp rax, rbx ; 48 0f 44 c3 = cmove rax, rbx
	data := []byte{0x48, 0x39, 0xd8, 0x48, 0x0f, 0x44, 0xc3}
	chunk := liftBytes(t, data, 0x400000)

	taken := newMachine(t)
	taken.setReg(rax, 7)
	taken.setReg(rbx, 7)
	taken.run(chunk)
	require.EqualValues(t, 7, taken.reg(rax))
	require.EqualValues(t, 1, taken.reg(zf))

	notTaken := newMachine(t)
	notTaken.setReg(rax, 7)
	notTaken.setReg(rbx, 8)
	notTaken.run(chunk)
	require.EqualValues(t, 7, notTaken.reg(rax), "untaken cmov leaves the destination alone")
	require.EqualValues(t, 0, notTaken.reg(zf))
}

func TestRepeCmpsbStopsAtMismatch(t *testing.T) {
	// f3 a6 = repe cmpsb
	chunk := liftBytes(t, []byte{0xf3, 0xa6}, 0x400000)
	m := newMachine(t)
	const src, dst = 0x1000, 0x2000
	for i, b := range []byte("abc") {
		m.mem[src+uint64(i)] = b
	}
	for i, b := range []byte("abd") {
		m.mem[dst+uint64(i)] = b
	}
	m.setReg(rsi, src)
	m.setReg(rdi, dst)
	m.setReg(rcx, 3)
	m.run(chunk)
	require.EqualValues(t, 0, m.reg(rcx))
	require.EqualValues(t, 0, m.reg(zf), "loop exits with ZF clear at the mismatch")
	require.EqualValues(t, src+3, m.reg(rsi))
	require.EqualValues(t, dst+3, m.reg(rdi))
}

func TestPushPopRoundTrip(t *testing.T) {
	// 53 = push rbx ; 58 = pop rax
	chunk := liftBytes(t, []byte{0x53, 0x58}, 0x400000)
	m := newMachine(t)
	m.setReg(rsp, 0x7ff0)
	m.setReg(rbx, 0xfeed)
	m.run(chunk)
	require.EqualValues(t, 0xfeed, m.reg(rax))
	require.EqualValues(t, 0x7ff0, m.reg(rsp))
}

func TestCallPushesReturnAddress(t *testing.T) {
	// e8 10 00 00 00 = call +0x10
	data := []byte{0xe8, 0x10, 0x00, 0x00, 0x00}
	const base = 0x400000
	chunk := liftBytes(t, data, base)
	m := newMachine(t)
	m.setReg(rsp, 0x7ff8)
	m.run(chunk)
	retAddr := uint64(base + len(data))
	require.EqualValues(t, retAddr+0x10, m.reg(decode.PCReg))
	require.EqualValues(t, 0x7ff0, m.reg(rsp))
	require.EqualValues(t, retAddr, m.load64(0x7ff0))
}

func TestUnimplementedLowersToPoisonCall(t *testing.T) {
	// 0f 0b = ud2
	b := ir.NewBuilder()
	chunk := b.BeginChunk("poison")
	dec := decode.NewDecoder([]byte{0x0f, 0x0b}, 0x400000)
	inst, addr, length, err := dec.Next()
	require.NoError(t, err)
	require.NoError(t, b.BeginPacket(addr, inst.String()))
	env := &decode.Env{B: b, Inst: inst, Addr: addr, Len: length}
	result, err := lift.Translate(env)
	require.NoError(t, err)
	require.Equal(t, lift.Fail, result)
	_, err = b.EndPacket()
	require.NoError(t, err)
	b.EndChunk()

	m := newMachine(t)
	m.run(chunk)
	require.Equal(t, []string{"handle_poison"}, m.calls)
}

func TestNopEndsEmptyPacket(t *testing.T) {
	// 90 = nop
	b := ir.NewBuilder()
	b.BeginChunk("nop")
	dec := decode.NewDecoder([]byte{0x90}, 0x400000)
	inst, addr, length, err := dec.Next()
	require.NoError(t, err)
	require.NoError(t, b.BeginPacket(addr, inst.String()))
	env := &decode.Env{B: b, Inst: inst, Addr: addr, Len: length}
	result, err := lift.Translate(env)
	require.NoError(t, err)
	require.Equal(t, lift.Noop, result)
	_, err = b.EndPacket()
	require.NoError(t, err)
	chunk := b.EndChunk()
	require.Empty(t, chunk.Packets()[0].Actions())
}
