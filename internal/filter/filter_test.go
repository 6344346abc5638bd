package filter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vastio/vastfetch/internal/parser"
)

func sampleDoc() map[string]any {
	return map[string]any{
		parser.KeyDuration: 30,
		parser.KeyWrapper:  false,
		parser.KeyMediaFiles: []map[string]any{
			{"url": "https://cdn.example.com/ad.mp4", "type": "video/mp4"},
		},
	}
}

func TestDurationBounds(t *testing.T) {
	t.Parallel()

	doc := sampleDoc()
	require.True(t, MinDuration(15).Matches(doc))
	require.False(t, MinDuration(60).Matches(doc))
	require.True(t, MaxDuration(30).Matches(doc))
	require.False(t, MaxDuration(15).Matches(doc))
}

func TestMissingFieldIsNonMatch(t *testing.T) {
	t.Parallel()

	empty := map[string]any{}
	require.False(t, MinDuration(1).Matches(empty))
	require.False(t, HasMediaFiles().Matches(empty))
	require.False(t, RequireMediaType("video/mp4").Matches(empty))
	require.False(t, RejectWrappers().Matches(empty))
}

func TestRequireMediaType(t *testing.T) {
	t.Parallel()

	doc := sampleDoc()
	require.True(t, RequireMediaType("video/mp4").Matches(doc))
	require.False(t, RequireMediaType("video/webm").Matches(doc))
}

func TestAllCombinator(t *testing.T) {
	t.Parallel()

	doc := sampleDoc()
	require.True(t, All(MinDuration(10), HasMediaFiles(), RejectWrappers()).Matches(doc))
	require.False(t, All(MinDuration(10), RequireMediaType("video/webm")).Matches(doc))
}

func TestNilFuncMatchesEverything(t *testing.T) {
	t.Parallel()

	var f Func
	require.True(t, f.Matches(nil))
}
