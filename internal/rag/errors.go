package rag

import "errors"

// Error kinds shared by every stage of the pipeline. Callers match them with
// errors.Is; concrete errors wrap both the kind and the underlying cause.
var (
	// ErrExtraction is returned when a source cannot be read or converted to text.
	ErrExtraction = errors.New("extraction failed")

	// ErrEmbedding is returned when the embedding model is unavailable or
	// produces malformed output.
	ErrEmbedding = errors.New("embedding failed")

	// ErrIndexWrite is returned when the vector index rejects or cannot
	// persist an insert.
	ErrIndexWrite = errors.New("index write failed")

	// ErrIndexRead is returned when the vector index cannot be searched.
	ErrIndexRead = errors.New("index read failed")

	// ErrGeneration is returned when the remote text generator fails or times out.
	ErrGeneration = errors.New("generation failed")

	// ErrValidation is returned for empty or missing required input.
	ErrValidation = errors.New("invalid input")
)
