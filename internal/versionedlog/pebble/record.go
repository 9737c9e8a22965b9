package pebble

import (
	"encoding/binary"
	"fmt"

	"github.com/chronomint/verscache/internal/model"
	"github.com/chronomint/verscache/internal/util"
)

// binary record encoding:
// [kindLen:2][kind][idLen:2][id][deleted:1][payload...][crc32:4]

func encodeRecord(key model.EntityKey, data []byte, deleted bool) []byte {
	kind := []byte(key.Kind)
	id := []byte(key.ID)

	buf := make([]byte, 0, 2+len(kind)+2+len(id)+1+len(data))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(kind)))
	buf = append(buf, kind...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(id)))
	buf = append(buf, id...)
	if deleted {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = append(buf, data...)

	return util.AppendChecksum(buf)
}

func decodeRecord(raw []byte) (model.EntityKey, []byte, bool, error) {
	buf, ok := util.ValidateAndStripChecksum(raw)
	if !ok {
		return model.EntityKey{}, nil, false, fmt.Errorf("record checksum mismatch")
	}

	if len(buf) < 2 {
		return model.EntityKey{}, nil, false, fmt.Errorf("record truncated")
	}
	kindLen := int(binary.BigEndian.Uint16(buf))
	buf = buf[2:]
	if len(buf) < kindLen+2 {
		return model.EntityKey{}, nil, false, fmt.Errorf("record truncated")
	}
	kind := string(buf[:kindLen])
	buf = buf[kindLen:]

	idLen := int(binary.BigEndian.Uint16(buf))
	buf = buf[2:]
	if len(buf) < idLen+1 {
		return model.EntityKey{}, nil, false, fmt.Errorf("record truncated")
	}
	id := string(buf[:idLen])
	buf = buf[idLen:]

	deleted := buf[0] == 1
	payload := buf[1:]

	// Copy out: the raw slice belongs to the pebble iterator/getter.
	data := make([]byte, len(payload))
	copy(data, payload)

	return model.EntityKey{Kind: model.Kind(kind), ID: id}, data, deleted, nil
}
