package homa

import "encoding/binary"

// Opcode identifies the kind of packet carried after CommonHeader.
type Opcode uint8

// Packet opcodes, per spec.md section 4.1.
const (
	OpAllData      Opcode = 20
	OpData         Opcode = 21
	OpGrant        Opcode = 22
	OpLogTimeTrace Opcode = 23
	OpResend       Opcode = 24
	OpBusy         Opcode = 25
	OpAbort        Opcode = 26
)

func (op Opcode) String() string {
	switch op {
	case OpAllData:
		return "ALL_DATA"
	case OpData:
		return "DATA"
	case OpGrant:
		return "GRANT"
	case OpLogTimeTrace:
		return "LOG_TIME_TRACE"
	case OpResend:
		return "RESEND"
	case OpBusy:
		return "BUSY"
	case OpAbort:
		return "ABORT"
	default:
		return "UNKNOWN"
	}
}

// Flag bits for CommonHeader.Flags. Not all flags are valid for all
// opcodes; see spec.md section 4.1.
const (
	FlagFromClient    uint8 = 1
	FlagRetransmitted uint8 = 2
	FlagRestart       uint8 = 4
)

// CommonHeaderSize is the wire size, in bytes, of CommonHeader.
const CommonHeaderSize = 1 + 8 + 8 + 1

// CommonHeader is present at the start of every packet.
type CommonHeader struct {
	Opcode Opcode
	RpcId  RpcId
	Flags  uint8
}

// FromClient reports whether this packet was sent client-to-server.
func (h CommonHeader) FromClient() bool { return h.Flags&FlagFromClient != 0 }

// Encode appends the wire encoding of h to buf and returns the result.
func (h CommonHeader) Encode(buf []byte) []byte {
	var tmp [CommonHeaderSize]byte
	tmp[0] = byte(h.Opcode)
	binary.LittleEndian.PutUint64(tmp[1:9], h.RpcId.ClientID)
	binary.LittleEndian.PutUint64(tmp[9:17], h.RpcId.Sequence)
	tmp[17] = h.Flags
	return append(buf, tmp[:]...)
}

// DecodeCommonHeader parses a CommonHeader from the front of buf, returning
// the header and the remaining bytes.
func DecodeCommonHeader(buf []byte) (CommonHeader, []byte, error) {
	if len(buf) < CommonHeaderSize {
		return CommonHeader{}, nil, ErrProtocolViolation
	}
	h := CommonHeader{
		Opcode: Opcode(buf[0]),
		RpcId: RpcId{
			ClientID: binary.LittleEndian.Uint64(buf[1:9]),
			Sequence: binary.LittleEndian.Uint64(buf[9:17]),
		},
		Flags: buf[17],
	}
	return h, buf[CommonHeaderSize:], nil
}

// AllDataHeader is the wire format for an ALL_DATA packet, which carries an
// entire request or response message in one packet.
type AllDataHeader struct {
	Common        CommonHeader
	MessageLength uint16
}

const allDataExtraSize = 2

// Encode appends the wire encoding of h to buf.
func (h AllDataHeader) Encode(buf []byte) []byte {
	buf = h.Common.Encode(buf)
	var tmp [allDataExtraSize]byte
	binary.LittleEndian.PutUint16(tmp[:], h.MessageLength)
	return append(buf, tmp[:]...)
}

// DecodeAllDataHeader parses an AllDataHeader from the front of buf.
func DecodeAllDataHeader(buf []byte) (AllDataHeader, []byte, error) {
	common, rest, err := DecodeCommonHeader(buf)
	if err != nil {
		return AllDataHeader{}, nil, err
	}
	if len(rest) < allDataExtraSize {
		return AllDataHeader{}, nil, ErrProtocolViolation
	}
	h := AllDataHeader{
		Common:        common,
		MessageLength: binary.LittleEndian.Uint16(rest[:2]),
	}
	return h, rest[allDataExtraSize:], nil
}

// DataHeader is the wire format for a DATA packet, carrying a fragment of a
// multi-packet message.
type DataHeader struct {
	Common            CommonHeader
	TotalLength       uint32
	Offset            uint32
	UnscheduledBytes  uint32
}

const dataExtraSize = 4 + 4 + 4

// Encode appends the wire encoding of h to buf.
func (h DataHeader) Encode(buf []byte) []byte {
	buf = h.Common.Encode(buf)
	var tmp [dataExtraSize]byte
	binary.LittleEndian.PutUint32(tmp[0:4], h.TotalLength)
	binary.LittleEndian.PutUint32(tmp[4:8], h.Offset)
	binary.LittleEndian.PutUint32(tmp[8:12], h.UnscheduledBytes)
	return append(buf, tmp[:]...)
}

// DecodeDataHeader parses a DataHeader from the front of buf.
func DecodeDataHeader(buf []byte) (DataHeader, []byte, error) {
	common, rest, err := DecodeCommonHeader(buf)
	if err != nil {
		return DataHeader{}, nil, err
	}
	if len(rest) < dataExtraSize {
		return DataHeader{}, nil, ErrProtocolViolation
	}
	h := DataHeader{
		Common:           common,
		TotalLength:      binary.LittleEndian.Uint32(rest[0:4]),
		Offset:           binary.LittleEndian.Uint32(rest[4:8]),
		UnscheduledBytes: binary.LittleEndian.Uint32(rest[8:12]),
	}
	return h, rest[dataExtraSize:], nil
}

// GrantHeader is the wire format for a GRANT packet.
type GrantHeader struct {
	Common   CommonHeader
	Offset   uint32
	Priority uint8
}

const grantExtraSize = 4 + 1

// Encode appends the wire encoding of h to buf.
func (h GrantHeader) Encode(buf []byte) []byte {
	buf = h.Common.Encode(buf)
	var tmp [grantExtraSize]byte
	binary.LittleEndian.PutUint32(tmp[0:4], h.Offset)
	tmp[4] = h.Priority
	return append(buf, tmp[:]...)
}

// DecodeGrantHeader parses a GrantHeader from the front of buf.
func DecodeGrantHeader(buf []byte) (GrantHeader, []byte, error) {
	common, rest, err := DecodeCommonHeader(buf)
	if err != nil {
		return GrantHeader{}, nil, err
	}
	if len(rest) < grantExtraSize {
		return GrantHeader{}, nil, ErrProtocolViolation
	}
	h := GrantHeader{
		Common:   common,
		Offset:   binary.LittleEndian.Uint32(rest[0:4]),
		Priority: rest[4],
	}
	return h, rest[grantExtraSize:], nil
}

// ResendHeader is the wire format for a RESEND packet.
type ResendHeader struct {
	Common   CommonHeader
	Offset   uint32
	Length   uint32
	Priority uint8
}

const resendExtraSize = 4 + 4 + 1

// Encode appends the wire encoding of h to buf.
func (h ResendHeader) Encode(buf []byte) []byte {
	buf = h.Common.Encode(buf)
	var tmp [resendExtraSize]byte
	binary.LittleEndian.PutUint32(tmp[0:4], h.Offset)
	binary.LittleEndian.PutUint32(tmp[4:8], h.Length)
	tmp[8] = h.Priority
	return append(buf, tmp[:]...)
}

// DecodeResendHeader parses a ResendHeader from the front of buf.
func DecodeResendHeader(buf []byte) (ResendHeader, []byte, error) {
	common, rest, err := DecodeCommonHeader(buf)
	if err != nil {
		return ResendHeader{}, nil, err
	}
	if len(rest) < resendExtraSize {
		return ResendHeader{}, nil, ErrProtocolViolation
	}
	h := ResendHeader{
		Common:   common,
		Offset:   binary.LittleEndian.Uint32(rest[0:4]),
		Length:   binary.LittleEndian.Uint32(rest[4:8]),
		Priority: rest[8],
	}
	return h, rest[resendExtraSize:], nil
}

// LogTimeTraceHeader is the wire format for a LOG_TIME_TRACE packet. It
// carries no fields beyond CommonHeader.
type LogTimeTraceHeader struct {
	Common CommonHeader
}

// Encode appends the wire encoding of h to buf.
func (h LogTimeTraceHeader) Encode(buf []byte) []byte { return h.Common.Encode(buf) }

// BusyHeader is the wire format for a BUSY packet. It carries no fields
// beyond CommonHeader.
type BusyHeader struct {
	Common CommonHeader
}

// Encode appends the wire encoding of h to buf.
func (h BusyHeader) Encode(buf []byte) []byte { return h.Common.Encode(buf) }

// AbortHeader is the wire format for an ABORT packet. It carries no fields
// beyond CommonHeader and is always sent with FlagFromClient set.
type AbortHeader struct {
	Common CommonHeader
}

// Encode appends the wire encoding of h to buf.
func (h AbortHeader) Encode(buf []byte) []byte { return h.Common.Encode(buf) }
