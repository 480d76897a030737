package serde

// BinarySerde converts Go values to and from a binary wire format.
type BinarySerde interface {
	SerializeBinary(value any) ([]byte, error)
	DeserializeBinary(data []byte, valuePtr any) error
}
