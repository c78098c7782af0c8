package wire

import "github.com/fxamacker/cbor/v2"

// envelopeEnc must produce exactly the bytes EncodedSize predicts:
// canonical order puts key 0 before key 1, lengths are always definite,
// and Go strings become text strings.
var envelopeEnc cbor.EncMode

// envelopeDec reads envelopes back for the console and tests. A repeated
// key 0 or 1 is rejected, as is invalid UTF-8 in a text payload, so
// Envelope.Text stays truthful.
var envelopeDec cbor.DecMode

func init() {
	var err error

	envelopeEnc, err = cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		String:        cbor.StringToTextString,
	}.EncMode()
	if err != nil {
		panic("wire: envelope encoder: " + err.Error())
	}

	envelopeDec, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
		UTF8:              cbor.UTF8RejectInvalid,
	}.DecMode()
	if err != nil {
		panic("wire: envelope decoder: " + err.Error())
	}
}

func marshal(v any) ([]byte, error) {
	return envelopeEnc.Marshal(v)
}

func unmarshal(data []byte, v any) error {
	return envelopeDec.Unmarshal(data, v)
}
