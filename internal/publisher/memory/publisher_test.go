package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishRecordsEncodedMessages(t *testing.T) {
	t.Parallel()

	p := New()

	id, err := p.Publish(context.Background(), "fetch-completions", map[string]any{
		"request_id": "r1",
		"state":      "done",
		"success":    true,
	})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id)

	id, err = p.Publish(context.Background(), "fetch-completions", map[string]any{
		"request_id": "r2",
		"state":      "failed",
		"success":    false,
	})
	require.NoError(t, err)
	require.Equal(t, "memory-2", id)

	msgs := p.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "fetch-completions", msgs[0].Topic)
	require.JSONEq(t, `{"request_id":"r1","state":"done","success":true}`, string(msgs[0].Data))
}

func TestCompletionsFiltersByTopic(t *testing.T) {
	t.Parallel()

	p := New()
	_, err := p.Publish(context.Background(), "fetch-completions", map[string]any{"request_id": "r1"})
	require.NoError(t, err)
	_, err = p.Publish(context.Background(), "other-topic", map[string]any{"request_id": "r2"})
	require.NoError(t, err)

	completions, err := p.Completions("fetch-completions")
	require.NoError(t, err)
	require.Len(t, completions, 1)
	require.Equal(t, "r1", completions[0]["request_id"])
}

func TestPublishRequiresTopic(t *testing.T) {
	t.Parallel()

	p := New()
	_, err := p.Publish(context.Background(), "", map[string]any{"request_id": "r1"})
	require.Error(t, err)
	require.Empty(t, p.Messages())
}

func TestPublishRejectsUnencodablePayload(t *testing.T) {
	t.Parallel()

	p := New()
	_, err := p.Publish(context.Background(), "fetch-completions", func() {})
	require.Error(t, err)
	require.Empty(t, p.Messages())
}
