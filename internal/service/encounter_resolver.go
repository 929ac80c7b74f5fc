package service

import (
	"context"
	"strings"

	"github.com/spec-kit/patient-queue-service/pkg/util"
)

// EncounterResolver checks that an encounter reference is known to the
// registration system that owns encounters. The queue engine never stores
// or re-validates encounter data itself.
type EncounterResolver interface {
	Resolve(ctx context.Context, encounterRef string) error
}

// acceptingResolver stands in for the registration collaborator in
// deployments where the gateway already guarantees resolvable references.
// It still rejects blank refs.
type acceptingResolver struct{}

// NewAcceptingResolver returns the pass-through resolver.
func NewAcceptingResolver() EncounterResolver {
	return acceptingResolver{}
}

func (acceptingResolver) Resolve(ctx context.Context, encounterRef string) error {
	if strings.TrimSpace(encounterRef) == "" {
		return util.NewUnknownEncounter(encounterRef)
	}
	return nil
}
