package binlog

import "errors"

var (
	errCobsZero      = errors.New("invalid COBS code 0x00")
	errCobsTruncated = errors.New("COBS frame truncated")
)

// cobsEncode encodes src so the result contains no 0x00 bytes. The frame
// delimiter is not appended.
func cobsEncode(src []byte) []byte {
	out := make([]byte, 1, len(src)+len(src)/254+2)
	codeIdx := 0
	code := byte(1)

	for _, b := range src {
		if b == 0 {
			out[codeIdx] = code
			codeIdx = len(out)
			out = append(out, 0)
			code = 1
			continue
		}

		out = append(out, b)
		code++
		if code == 0xFF {
			out[codeIdx] = code
			codeIdx = len(out)
			out = append(out, 0)
			code = 1
		}
	}

	out[codeIdx] = code
	return out
}

// cobsDecode decodes a COBS frame without the trailing 0x00 delimiter.
func cobsDecode(frame []byte) ([]byte, error) {
	if len(frame) == 0 {
		return nil, nil
	}

	out := make([]byte, 0, len(frame))
	for i := 0; i < len(frame); {
		code := frame[i]
		if code == 0 {
			return nil, errCobsZero
		}
		i++

		count := int(code) - 1
		if i+count > len(frame) {
			return nil, errCobsTruncated
		}

		out = append(out, frame[i:i+count]...)
		i += count

		if code != 0xFF && i < len(frame) {
			out = append(out, 0x00)
		}
	}

	return out, nil
}
