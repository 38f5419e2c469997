package jetstreamclient

import (
	"encoding/json"
	"fmt"
)

// PostEvent is the normalized, post-validation representation of a
// app.bsky.feed.post create commit. It is the only shape published on the
// posts stream.
type PostEvent struct {
	AuthorID        string
	RecordKey       string
	ContentID       string
	URI             string
	Text            string
	CreatedAt       string
	TimestampMicros int64
	Languages       []string
	IsReply         bool
}

// wireEvent is the raw Jetstream frame shape, discriminated by Kind.
type wireEvent struct {
	DID    string          `json:"did"`
	TimeUS int64           `json:"time_us"`
	Kind   string          `json:"kind"`
	Commit json.RawMessage `json:"commit,omitempty"`
}

type wireCommit struct {
	Rev        string          `json:"rev"`
	Operation  string          `json:"operation"`
	Collection string          `json:"collection"`
	RKey       string          `json:"rkey"`
	CID        string          `json:"cid"`
	Record     json.RawMessage `json:"record,omitempty"`
}

type wirePostRecord struct {
	Type      string   `json:"$type"`
	Text      string   `json:"text"`
	CreatedAt string   `json:"createdAt"`
	Langs     []string `json:"langs,omitempty"`
	Reply     *struct {
		Root   json.RawMessage `json:"root"`
		Parent json.RawMessage `json:"parent"`
	} `json:"reply,omitempty"`
}

// parsedFrame is the decoded form of one inbound WebSocket message, carrying
// enough of the commit to decide whether a PostEvent should be produced.
type parsedFrame struct {
	timeUS     int64
	kind       string
	did        string
	operation  string
	collection string
	rkey       string
	cid        string
	record     *wirePostRecord
}

// parseFrame decodes a raw Jetstream WebSocket message. Decode failures are
// returned to the caller, who is responsible for counting and dropping them
// without tearing down the connection.
func parseFrame(data []byte) (*parsedFrame, error) {
	var raw wireEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal frame: %w", err)
	}

	frame := &parsedFrame{
		timeUS: raw.TimeUS,
		kind:   raw.Kind,
		did:    raw.DID,
	}

	if raw.Kind != "commit" || len(raw.Commit) == 0 {
		return frame, nil
	}

	var commit wireCommit
	if err := json.Unmarshal(raw.Commit, &commit); err != nil {
		return nil, fmt.Errorf("unmarshal commit: %w", err)
	}
	frame.operation = commit.Operation
	frame.collection = commit.Collection
	frame.rkey = commit.RKey
	frame.cid = commit.CID

	if len(commit.Record) > 0 && commit.Operation == "create" && commit.Collection == "app.bsky.feed.post" {
		var record wirePostRecord
		if err := json.Unmarshal(commit.Record, &record); err != nil {
			return nil, fmt.Errorf("unmarshal post record: %w", err)
		}
		frame.record = &record
	}

	return frame, nil
}

// toPostEvent converts a parsed commit-create frame into a normalized post
// event, applying the invariants in the data model: non-empty text, record
// key, content id, collection, and author id. Returns nil if any invariant
// fails, meaning the frame is dropped rather than propagated.
func (f *parsedFrame) toPostEvent() *PostEvent {
	if f.kind != "commit" || f.operation != "create" || f.collection != "app.bsky.feed.post" {
		return nil
	}
	if f.record == nil {
		return nil
	}
	if f.record.Text == "" || f.rkey == "" || f.cid == "" || f.collection == "" || f.did == "" {
		return nil
	}

	isReply := f.record.Reply != nil

	return &PostEvent{
		AuthorID:        f.did,
		RecordKey:       f.rkey,
		ContentID:       f.cid,
		URI:             fmt.Sprintf("at://%s/%s/%s", f.did, f.collection, f.rkey),
		Text:            f.record.Text,
		CreatedAt:       f.record.CreatedAt,
		TimestampMicros: f.timeUS,
		Languages:       f.record.Langs,
		IsReply:         isReply,
	}
}
