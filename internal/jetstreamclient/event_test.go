package jetstreamclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrameCommitCreatePost(t *testing.T) {
	raw := []byte(`{
		"did": "did:plc:abc123",
		"time_us": 1737000000000000,
		"kind": "commit",
		"commit": {
			"rev": "abc",
			"operation": "create",
			"collection": "app.bsky.feed.post",
			"rkey": "xyz987",
			"cid": "bafkreitest",
			"record": {
				"$type": "app.bsky.feed.post",
				"text": "Love the iPhone 15 camera, way better than last year",
				"createdAt": "2025-01-16T00:00:00.000Z",
				"langs": ["en"]
			}
		}
	}`)

	frame, err := parseFrame(raw)
	require.NoError(t, err)

	post := frame.toPostEvent()
	require.NotNil(t, post)
	assert.Equal(t, "did:plc:abc123", post.AuthorID)
	assert.Equal(t, "xyz987", post.RecordKey)
	assert.Equal(t, "bafkreitest", post.ContentID)
	assert.Equal(t, "at://did:plc:abc123/app.bsky.feed.post/xyz987", post.URI)
	assert.Equal(t, int64(1737000000000000), post.TimestampMicros)
	assert.False(t, post.IsReply)
}

func TestParseFrameNonCommitKindIgnored(t *testing.T) {
	raw := []byte(`{"did": "did:plc:abc", "time_us": 42, "kind": "identity"}`)

	frame, err := parseFrame(raw)
	require.NoError(t, err)
	assert.Nil(t, frame.toPostEvent())
	assert.Equal(t, int64(42), frame.timeUS)
}

func TestParseFrameMalformedJSON(t *testing.T) {
	_, err := parseFrame([]byte("not-valid-json"))
	assert.Error(t, err)
}

func TestParseFrameDropsEmptyText(t *testing.T) {
	raw := []byte(`{
		"did": "did:plc:abc123",
		"time_us": 1,
		"kind": "commit",
		"commit": {
			"operation": "create",
			"collection": "app.bsky.feed.post",
			"rkey": "xyz",
			"cid": "bafcid",
			"record": {"$type": "app.bsky.feed.post", "text": "", "createdAt": "2025-01-01T00:00:00Z"}
		}
	}`)

	frame, err := parseFrame(raw)
	require.NoError(t, err)
	assert.Nil(t, frame.toPostEvent())
}

func TestParseFrameDeleteOperationIgnored(t *testing.T) {
	raw := []byte(`{
		"did": "did:plc:abc123",
		"time_us": 1,
		"kind": "commit",
		"commit": {"operation": "delete", "collection": "app.bsky.feed.post", "rkey": "xyz", "cid": "c"}
	}`)

	frame, err := parseFrame(raw)
	require.NoError(t, err)
	assert.Nil(t, frame.toPostEvent())
}
