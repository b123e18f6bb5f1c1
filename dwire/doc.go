/*
Package dwire implements the primitive field encoding used inside ptstream
token payloads and broker packets.

Fundamental types:

	- bool: Encoded as 0x00 or 0x01 if the value is false or true,
	  respectively.
	- uint8: Encoded as a single byte in the range 0x00-0xff.
	- uint16, uint32, uint64: Encoded as two, four or eight big-endian bytes.
	- int32, int64: Encoded as the two's complement big-endian bytes of the
	  same width.
	- float64: Encoded as the eight big-endian bytes of its IEEE-754 bits.
	- []byte: Encoded as a binary.Uvarint length prefix followed by the
	  bytes.
	- string: Encoded as a UTF-8 []byte.

dwire does not frame values: a decoder must know the sequence of fields it
expects. To encode values into a Writer:

	err := dwire.EncodeFields(w, uint16(7), "topic", payload)

To decode them:

	var tag uint16
	var topic string
	var payload []byte
	err := dwire.DecodeFields(r, &tag, &topic, &payload)

Note that values passed to DecodeField/DecodeFields MUST be pointers.

Types implementing Encoder and Decoder can be passed to the field functions
directly.
*/
package dwire
