package port

import "context"

// Stems references the two derived audio streams produced by source
// separation, as object keys in the separated bucket.
type Stems struct {
	VocalKey        string
	InstrumentalKey string
}

// Separator splits a mixed track into a vocal-only and an instrumental-only
// stream. The input is the original's key in the originals bucket; derived
// stems are written under the given namespace in the separated bucket.
//
// The call is synchronous and may take minutes. Which backend does the work
// (remote analysis server or a local model invocation) is a deployment-time
// choice made at startup, not a per-job decision.
type Separator interface {
	Separate(ctx context.Context, storageKey, namespace string) (Stems, error)
}
