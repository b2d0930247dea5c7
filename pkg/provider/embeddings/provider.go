// Package embeddings defines the Provider interface for vector embedding backends.
//
// An embeddings provider wraps a service that maps text strings to dense float32
// vectors. The feedback pipeline embeds learner sentences with the same encoder
// that indexed the error-example collection, so retrieval quality depends on
// every component agreeing on one model.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider is the abstraction over any text-embedding backend.
//
// All embedding vectors returned by a single Provider instance must share the
// same dimensionality (returned by Dimensions). Query vectors are only
// comparable to the stored collection when both were produced by the same
// model; ModelID exists so startup wiring can log and verify that.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Embed computes the embedding vector for a single text string. Returns a
	// float32 slice of length Dimensions() or an error if the request fails or
	// ctx is cancelled.
	//
	// The text is passed through verbatim; any model-specific prompt prefix is
	// the caller's responsibility.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the fixed length of every embedding vector produced by
	// this provider. The value is determined by the underlying model and is
	// constant for the lifetime of the Provider instance.
	Dimensions() int

	// ModelID returns the provider-specific model identifier used for
	// embeddings. Useful for logging and for checking that the query encoder
	// matches the one that built the collection.
	ModelID() string
}
