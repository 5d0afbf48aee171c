// Command hexliftc is a minimal translate-one-chunk driver: it decodes a
// raw x86-64 byte blob, lifts it into IR, runs the dead-flag optimizer,
// lowers it to AArch64 host instructions, allocates registers, encodes the
// result into a code arena, and prints a debug dump plus the resulting
// byte count. It is deliberately not a full CLI; it exists so the
// translation pipeline has one concrete, runnable wiring.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/hexlift/hexlift/decode"
	"github.com/hexlift/hexlift/debugdump"
	"github.com/hexlift/hexlift/host"
	"github.com/hexlift/hexlift/host/arm64"
	"github.com/hexlift/hexlift/ir"
	"github.com/hexlift/hexlift/lift"
	"github.com/hexlift/hexlift/mcode"
	"github.com/hexlift/hexlift/opt"
	"github.com/hexlift/hexlift/xctx"
)

func main() {
	var (
		hexBytes = flag.String("bytes", "", "hex-encoded x86-64 instruction bytes to translate")
		base     = flag.Uint64("base", 0x400000, "guest base address of the byte blob")
		dot      = flag.Bool("dot", false, "emit a Graphviz dump instead of text")
	)
	flag.Parse()

	if *hexBytes == "" {
		fmt.Fprintln(os.Stderr, "usage: hexliftc -bytes <hex> [-base 0x...] [-dot]")
		os.Exit(2)
	}
	data, err := hex.DecodeString(*hexBytes)
	if err != nil {
		fatal(err)
	}

	log, _ := zap.NewDevelopment()
	defer log.Sync()

	for _, off := range decode.FlagOffsets() {
		opt.RegisterFlagOffset(off)
	}

	chunk, err := liftChunk(data, *base)
	if err != nil {
		fatal(err)
	}

	res := opt.DeadFlagElimination(chunk, log)
	log.Sugar().Infof("dead-flag elimination: removed %d/%d flag writes", res.Removed, res.Total)

	lowerer := xctx.NewArm64Lowerer(log)
	if err := lowerer.LowerChunk(chunk); err != nil {
		fatal(err)
	}

	allocator := host.NewAllocator(arm64.Config())
	eliminated, err := allocator.Allocate(lowerer.Blocks())
	if err != nil {
		fatal(err)
	}
	if err := host.VerifyAllocated(lowerer.Blocks()); err != nil {
		fatal(err)
	}
	log.Sugar().Infof("register allocation: eliminated %d redundant copies", eliminated)

	arena := mcode.NewArena(1 << 16)
	writer, err := mcode.NewWriter(arena, 4096)
	if err != nil {
		fatal(err)
	}
	for _, blk := range lowerer.Blocks() {
		writer.PlaceLabel(blk.Label)
		for _, instr := range blk.Instr {
			bytes, err := arm64.Encode(instr)
			if err != nil {
				fatal(err)
			}
			writer.Append(bytes)
		}
	}

	if *dot {
		_ = debugdump.Dot(os.Stdout, chunk)
	} else {
		_ = debugdump.Dump(os.Stdout, chunk)
	}
	fmt.Printf("\nemitted %d host bytes into a %d-byte arena\n", len(writer.Bytes()), arena.Cap())
}

// liftChunk decodes data (sitting at guest address base) instruction by
// instruction, dispatching each to its translator category and stopping at
// the first end_of_block packet or decode failure (the chunk truncates at
// the last good instruction).
func liftChunk(data []byte, base uint64) (*ir.Chunk, error) {
	b := ir.NewBuilder()
	chunk := b.BeginChunk("hexliftc_blob")
	dec := decode.NewDecoder(data, base)

	for !dec.Done() {
		inst, addr, length, err := dec.Next()
		if err != nil {
			break // DecodeError: truncate the chunk at the last successful instruction.
		}
		if err := b.BeginPacket(addr, inst.String()); err != nil {
			return nil, err
		}
		env := &decode.Env{B: b, Inst: inst, Addr: addr, Len: length}
		result, err := lift.Translate(env)
		if err != nil {
			return nil, err
		}
		packetResult, err := b.EndPacket()
		if err != nil {
			return nil, err
		}
		if result == lift.EndOfBlock || packetResult == ir.PacketEndOfBlock {
			break
		}
	}
	b.EndChunk()
	return chunk, nil
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "hexliftc:", err)
	os.Exit(1)
}
