package broker

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

const bundleWorkerLimit = 8

// ErrUnknownProfile is returned for profile names outside the declarative
// table. The routing layer binds each path to a known profile, so hitting
// this is a wiring bug, not caller input.
var ErrUnknownProfile = errors.New("broker: unknown consumer profile")

// StoreError marks a bundle that failed because the credential store could
// not serve it (unavailable, decryption failure). Callers receive no bundle
// at all in that case; a silently truncated bundle would look complete while
// missing secrets.
type StoreError struct {
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("broker: credential store failure: %v", e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Provider is the read surface of the credential store. The second return
// reports presence: an absent key is not an error.
type Provider interface {
	Get(ctx context.Context, key string, decrypt bool) (string, bool, error)
}

// Broker assembles credential bundles for consumer profiles. Stateless per
// call; every bundle is built fresh from the store.
type Broker struct {
	store   Provider
	runtime RuntimeContext
}

func New(store Provider, runtime RuntimeContext) *Broker {
	return &Broker{store: store, runtime: runtime}
}

// Bundle resolves the profile's credential list into a sparse key/value
// mapping: keys with no store value and no default are omitted, never set to
// an empty placeholder. Store lookups run concurrently; the first failure
// cancels the rest and the whole bundle is abandoned.
func (b *Broker) Bundle(ctx context.Context, profile, callerAddress string) (map[string]string, error) {
	specs, ok := profiles[profile]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProfile, profile)
	}

	type resolved struct {
		value   string
		present bool
	}
	results := make([]resolved, len(specs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bundleWorkerLimit)

	for i, spec := range specs {
		i, spec := i, spec
		g.Go(func() error {
			if spec.Override != nil {
				results[i] = resolved{value: spec.Override(b.runtime), present: true}
				return nil
			}

			value, found, err := b.store.Get(gctx, spec.Key, spec.Decrypt)
			if err != nil {
				return fmt.Errorf("resolve %s: %w", spec.Key, err)
			}

			switch {
			case found:
				results[i] = resolved{value: value, present: true}
			case spec.HasDefault:
				results[i] = resolved{value: spec.Default, present: true}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, &StoreError{Err: err}
	}

	bundle := make(map[string]string, len(specs))
	for i, spec := range specs {
		if results[i].present {
			bundle[spec.Key] = results[i].value
		}
	}

	log.Info("Provided credential bundle", "profile", profile, "address", callerAddress)
	return bundle, nil
}
