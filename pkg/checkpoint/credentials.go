package checkpoint

import (
	"context"

	"github.com/pagewatch/sentinel/pkg/providers"
)

// CredentialResolver resolves a user's analytics provider credentials for a
// checkpoint batch. Credential storage/decryption is an out-of-scope
// collaborator (spec §1 analytics integration); implementations own that
// lookup. A resolution failure must be downgraded to the none provider by
// the caller, never treated as fatal to the batch.
type CredentialResolver interface {
	Resolve(ctx context.Context, userID string) (providers.Credentials, error)
}

// NoneResolver is a CredentialResolver that always resolves to the no-op
// "none" provider. It is the default wired by cmd/sentinel until a real
// credential store is integrated, matching pkg/tier.AllProResolver's
// degrade-rather-than-block posture.
type NoneResolver struct{}

// Resolve always returns providers.KindNone.
func (NoneResolver) Resolve(context.Context, string) (providers.Credentials, error) {
	return providers.Credentials{Kind: providers.KindNone}, nil
}
