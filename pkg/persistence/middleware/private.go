package middleware

import (
	"context"
	"fmt"
	"regexp"
	"slices"

	"github.com/CentralLabFacilities/bonsai-sub000/pkg/ports"
)

type privateMiddleware struct {
	next     ports.SlotStore
	local    ports.SlotStore
	patterns []*regexp.Regexp
}

// NewPrivateMiddleware keeps slots whose names match any of the patterns in
// local instead of the wrapped store, so personal data never leaves the
// process.
func NewPrivateMiddleware(patterns []string, local ports.SlotStore) (Middleware, error) {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("private slot pattern %q: %w", p, err)
		}
		compiled[i] = re
	}
	return func(next ports.SlotStore) ports.SlotStore {
		return &privateMiddleware{next: next, local: local, patterns: compiled}
	}, nil
}

func (m *privateMiddleware) route(name string) ports.SlotStore {
	for _, re := range m.patterns {
		if re.MatchString(name) {
			return m.local
		}
	}
	return m.next
}

func (m *privateMiddleware) Get(ctx context.Context, name string) ([]byte, error) {
	return m.route(name).Get(ctx, name)
}

func (m *privateMiddleware) Set(ctx context.Context, name string, value []byte) error {
	return m.route(name).Set(ctx, name, value)
}

func (m *privateMiddleware) Delete(ctx context.Context, name string) error {
	return m.route(name).Delete(ctx, name)
}

func (m *privateMiddleware) Keys(ctx context.Context) ([]string, error) {
	shared, err := m.next.Keys(ctx)
	if err != nil {
		return nil, err
	}
	private, err := m.local.Keys(ctx)
	if err != nil {
		return nil, err
	}
	keys := slices.Concat(shared, private)
	slices.Sort(keys)
	return slices.Compact(keys), nil
}
