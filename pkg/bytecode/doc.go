// Package bytecode reads, writes and inspects HashLink bytecode (.hl) files.
//
// A decoded file is a Program: a set of pools (integers, floats, strings,
// bytes, types, globals, natives, functions, constants) whose elements refer
// to each other by typed index. Nothing holds a pointer into another pool,
// so a Program is a plain value that can be encoded back to the exact bytes
// it was decoded from.
//
// # Architecture Overview
//
//   - Codec: Decode and Encode convert between the wire format and a
//     Program. The wire format uses a variable-length integer encoding
//     (see AppendVarInt) for nearly every value.
//
//   - Opcodes: the 98 instruction variants are described by a single
//     table (OpcodeInfo) that drives decoding, encoding, validation,
//     disassembly and the control-flow analyses of other packages.
//
//   - Link: derives the function index, flattened object fields, function
//     names and parents, and the name lookup table. Decode links
//     automatically.
//
//   - Resolution: Get* methods resolve a typed index and fail with
//     ErrMissingRef when it is out of range. The *Name helpers never fail;
//     they fall back to placeholders such as "str@12" or "fn@7".
//
//   - Formatting: Formatter renders instructions, functions, types and
//     constants as text in raw, resolved or debug style.
//
// # Errors
//
// Decoding failures are *DecodeError values carrying the byte offset where
// the problem was found; errors.Is matches them against the sentinel kinds
// (ErrInvalidMagic, ErrUnexpectedEOF, ...). Encoding failures are
// *EncodeError values naming the element that could not be written.
package bytecode
