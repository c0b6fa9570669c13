package snapshot

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Canonical mode gives one encoding per image, so identical threads produce
// identical bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("snapshot: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalThread serializes a ThreadImage to CBOR bytes.
func MarshalThread(img *ThreadImage) ([]byte, error) {
	return cborEncMode.Marshal(img)
}

// UnmarshalThread deserializes a ThreadImage from CBOR bytes.
func UnmarshalThread(data []byte) (*ThreadImage, error) {
	var img ThreadImage
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("snapshot: unmarshal thread: %w", err)
	}
	if img.Version != ImageVersion {
		return nil, fmt.Errorf("snapshot: thread image version %d: %w", img.Version, ErrInvalidImage)
	}
	return &img, nil
}

// MarshalHeap serializes a HeapImage to CBOR bytes.
func MarshalHeap(img *HeapImage) ([]byte, error) {
	return cborEncMode.Marshal(img)
}

// UnmarshalHeap deserializes a HeapImage from CBOR bytes.
func UnmarshalHeap(data []byte) (*HeapImage, error) {
	var img HeapImage
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("snapshot: unmarshal heap: %w", err)
	}
	if img.Version != ImageVersion {
		return nil, fmt.Errorf("snapshot: heap image version %d: %w", img.Version, ErrInvalidImage)
	}
	return &img, nil
}
