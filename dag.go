package ethbs

import "github.com/fxamacker/cbor/v2"

var encMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// EncodeCanonical encodes v as core-deterministic CBOR,
// the form of dag-cbor blobs.
func EncodeCanonical(v interface{}) ([]byte, error) {
	return encMode.Marshal(v)
}
