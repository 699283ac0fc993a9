package formula

import (
	"encoding/binary"
	"fmt"
	"strconv"
)

// ComposeKey builds the length-prefixed composite key format spec §3
// describes for WasmStateEvent.Key: every segment except the last is
// prefixed with its big-endian uint16 length; the last segment carries no
// prefix, matching how a raw wasm storage key trails a human-readable
// namespace path.
func ComposeKey(segments ...any) ([]byte, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("formula: ComposeKey requires at least one segment")
	}
	var out []byte
	for i, seg := range segments {
		b, err := segmentBytes(seg)
		if err != nil {
			return nil, err
		}
		if i < len(segments)-1 {
			if len(b) > 0xFFFF {
				return nil, fmt.Errorf("formula: key segment %d too long to length-prefix (%d bytes)", i, len(b))
			}
			var lenPrefix [2]byte
			binary.BigEndian.PutUint16(lenPrefix[:], uint16(len(b)))
			out = append(out, lenPrefix[:]...)
		}
		out = append(out, b...)
	}
	return out, nil
}

func segmentBytes(seg any) ([]byte, error) {
	switch v := seg.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	case int:
		return []byte(strconv.FormatInt(int64(v), 10)), nil
	case int64:
		return []byte(strconv.FormatInt(v, 10)), nil
	case uint64:
		return []byte(strconv.FormatUint(v, 10)), nil
	default:
		return nil, fmt.Errorf("formula: unsupported key segment type %T", seg)
	}
}
