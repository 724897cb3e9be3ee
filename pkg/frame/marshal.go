package frame

import "mavrelay/pkg/crc16"

const (
	startV1 = 0xFE
	startV2 = 0xFD
)

// Marshal serializes f onto the wire, computing and appending its
// checksum. Signing a newly-built frame is out of scope, so every frame
// this router originates is sent unsigned. A Signed frame (one the
// parser read off the wire with the signature bit set) is returned as
// its original Raw bytes instead: re-deriving header+payload+checksum
// here would produce a frame that still claims to be signed via
// IncompatFlags but is missing its mandatory 13-byte signature trailer,
// desyncing whatever parses it next.
func Marshal(f Frame) []byte {
	if f.Signed {
		return append([]byte(nil), f.Raw...)
	}

	var header []byte
	if f.Version == V1 {
		header = []byte{
			uint8(len(f.Payload)),
			f.Sequence,
			f.SourceSystem,
			f.SourceComponent,
			uint8(f.MessageID),
		}
	} else {
		header = []byte{
			uint8(len(f.Payload)),
			f.IncompatFlags,
			f.CompatFlags,
			f.Sequence,
			f.SourceSystem,
			f.SourceComponent,
			uint8(f.MessageID),
			uint8(f.MessageID >> 8),
			uint8(f.MessageID >> 16),
		}
	}

	body := append(header, f.Payload...)
	checksum := crc16.Compute(body, []byte{f.CRCExtra})

	start := byte(startV1)
	if f.Version == V2 {
		start = startV2
	}

	out := make([]byte, 0, 1+len(body)+2)
	out = append(out, start)
	out = append(out, body...)
	out = append(out, uint8(checksum), uint8(checksum>>8))
	return out
}
