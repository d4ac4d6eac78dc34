package nlu

import "context"

// DefaultModelID is the classifier model used until a conversation node
// switches the channel to another one.
const DefaultModelID = "0"

// Resolver classifies free text into an Intent. Implemented by an external
// NLU service client; the engine only depends on this interface.
type Resolver interface {
	Classify(ctx context.Context, modelID, text string) (Intent, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, modelID, text string) (Intent, error)

func (f ResolverFunc) Classify(ctx context.Context, modelID, text string) (Intent, error) {
	return f(ctx, modelID, text)
}
