package compressor

// builtinFactories lists every compressor this module knows about, in
// registration/detection order. The order matters for Detect: more
// specific signatures are checked first.
func builtinFactories() []*Factory {
	return []*Factory{
		storeFactory(),
		deflateFactory(),
		deflate64Factory(),
		bzip2Factory(),
		lzmaFactory(),
		xzFactory(),
		zstdFactory(),
		snappyFramedFactory(),
		lz4FramedFactory(),
		lz4BlockFactory(),
		zFactory(),
		pack200Factory(),
		ppmdFactory(),
	}
}
