package filter

import (
	"context"

	"github.com/osa030/19deck/internal/domain/track"
)

// ExplicitFilter rejects tracks flagged as explicit.
type ExplicitFilter struct{}

// NewExplicitFilter creates a new explicit content filter.
func NewExplicitFilter() *ExplicitFilter {
	return &ExplicitFilter{}
}

func (f *ExplicitFilter) Name() string {
	return "explicit_filter"
}

func (f *ExplicitFilter) Description() string {
	return "Rejects tracks flagged as explicit"
}

func (f *ExplicitFilter) ReturnCodes() []string {
	return []string{"explicit_content"}
}

func (f *ExplicitFilter) ValidateConfig(settings map[string]any) error {
	// No configuration needed
	return nil
}

func (f *ExplicitFilter) Check(ctx context.Context, t track.Track, accepted []track.Track) Result {
	if t.Explicit {
		return Reject("explicit_content")
	}
	return Accept()
}

func init() {
	Register("explicit_filter", func() Filter {
		return &ExplicitFilter{}
	})
}
