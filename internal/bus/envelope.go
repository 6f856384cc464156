package bus

import "github.com/golang/snappy"

// CompressPayload Snappy-compresses a contract payload. Snappy trades ratio
// for speed, the same trade the teacher makes available on its gRPC
// transport. None of the bus backends calls it: every backend carries the
// payload bytes exactly as the caller published them.
func CompressPayload(payload []byte) []byte {
	return snappy.Encode(nil, payload)
}

// DecompressPayload reverses CompressPayload.
func DecompressPayload(compressed []byte) ([]byte, error) {
	return snappy.Decode(nil, compressed)
}
