package types

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var cborEncMode cbor.EncMode

func init() {
	var err error
	if cborEncMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(fmt.Errorf("initializing CBOR encoder: %w", err))
	}
}

// Cbor encodes v using deterministic (canonical) CBOR encoding. Signatures
// over encoded values rely on the encoding being deterministic.
func Cbor(v any) ([]byte, error) {
	return cborEncMode.Marshal(v)
}

// CborDecode decodes CBOR data into v.
func CborDecode(data []byte, v any) error {
	return cbor.Unmarshal(data, v)
}
