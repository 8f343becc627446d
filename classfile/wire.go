package classfile

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// BundleVersion is written into every encoded bundle.
const BundleVersion = 1

// Bundle is the unit classes are shipped in: a versioned list of
// classes.
type Bundle struct {
	Version int      `cbor:"1,keyasint"`
	Classes []*Class `cbor:"2,keyasint"`
}

// cborEncMode uses canonical mode so equal bundles encode to equal bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("classfile: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Marshal serializes a single class to CBOR bytes.
func Marshal(c *Class) ([]byte, error) {
	return MarshalBundle(c)
}

// MarshalBundle serializes classes as one bundle.
func MarshalBundle(classes ...*Class) ([]byte, error) {
	return cborEncMode.Marshal(&Bundle{Version: BundleVersion, Classes: classes})
}

// Unmarshal deserializes a bundle holding exactly one class.
func Unmarshal(data []byte) (*Class, error) {
	classes, err := UnmarshalBundle(data)
	if err != nil {
		return nil, err
	}
	if len(classes) != 1 {
		return nil, fmt.Errorf("classfile: bundle holds %d classes, want 1", len(classes))
	}
	return classes[0], nil
}

// UnmarshalBundle deserializes a bundle and validates every class in it.
func UnmarshalBundle(data []byte) ([]*Class, error) {
	var b Bundle
	if err := cbor.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("classfile: unmarshal bundle: %w", err)
	}
	if b.Version != BundleVersion {
		return nil, fmt.Errorf("classfile: unsupported bundle version %d", b.Version)
	}
	for _, c := range b.Classes {
		if c == nil {
			return nil, fmt.Errorf("classfile: bundle holds a nil class")
		}
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("classfile: %w", err)
		}
	}
	return b.Classes, nil
}
