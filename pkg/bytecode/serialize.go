package bytecode

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// unitNamespace scopes the name-derived unit identifiers.
var unitNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("garnet:unit"))

// cborEncMode uses canonical encoding so that the same unit always
// serializes to the same bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// UnitID derives the stable identifier of the unit called name.
func UnitID(name string) string {
	return uuid.NewSHA1(unitNamespace, []byte(name)).String()
}

// Bytes serializes the unit.
// Format:
//
//	[magic:4] [version:2] [cbor body:...]
func (c *ClassBuilder) Bytes() ([]byte, error) {
	return Marshal(c.unit)
}

// Marshal serializes a unit.
func Marshal(u *Unit) ([]byte, error) {
	body, err := cborEncMode.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("bytecode: marshal unit %s: %w", u.Name, err)
	}
	buf := make([]byte, 0, len(Magic)+2+len(body))
	buf = append(buf, Magic...)
	buf = binary.BigEndian.AppendUint16(buf, FormatVersion)
	return append(buf, body...), nil
}

// Unmarshal decodes a unit produced by Marshal.
func Unmarshal(data []byte) (*Unit, error) {
	if len(data) < len(Magic)+2 {
		return nil, fmt.Errorf("bytecode: unit too short: need at least %d bytes, got %d", len(Magic)+2, len(data))
	}
	if !bytes.Equal(data[:len(Magic)], Magic) {
		return nil, fmt.Errorf("bytecode: invalid magic: expected %q, got %q", Magic, data[:len(Magic)])
	}
	version := binary.BigEndian.Uint16(data[len(Magic):])
	if version > FormatVersion {
		return nil, fmt.Errorf("bytecode: unit version %d is newer than supported version %d", version, FormatVersion)
	}
	var u Unit
	if err := cbor.Unmarshal(data[len(Magic)+2:], &u); err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal unit: %w", err)
	}
	return &u, nil
}
