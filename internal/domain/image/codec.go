package image

// Codec decodes, inspects and re-encodes raster images.
type Codec interface {
	// Probe reads header-level metadata without decoding pixels.
	Probe(data []byte) (Metadata, error)
	// Transform applies plan to data and returns the encoded result.
	Transform(data []byte, plan Plan) (Encoded, error)
}
