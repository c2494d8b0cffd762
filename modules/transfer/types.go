package transfer

import (
	"encoding/json"
	"time"
)

// StartAnnouncement is the payload of binaryStart.
type StartAnnouncement struct {
	TransferID  string `json:"transferId"`
	TotalSize   int    `json:"totalSize"`
	TotalChunks int    `json:"totalChunks"`
	ChunkSize   int    `json:"chunkSize"`
}

// Chunk is the payload of binaryChunk. Data is base64 encoded on the wire.
type Chunk struct {
	TransferID string `json:"transferId"`
	Index      int    `json:"index"`
	Data       []byte `json:"data"`
	IsLast     bool   `json:"isLast"`
}

// Completion is the payload of binaryComplete.
type Completion struct {
	TransferID string `json:"transferId"`
	TotalSize  int    `json:"totalSize"`
	Success    bool   `json:"success"`
}

// Result is returned to the sender once every chunk has been emitted.
type Result struct {
	Success     bool          `json:"success"`
	TransferID  string        `json:"transferId"`
	TotalChunks int           `json:"totalChunks"`
	TotalSize   int           `json:"totalSize"`
	Duration    time.Duration `json:"-"`
}

// BinaryDataRequest carries a payload sent in a text frame.
type BinaryDataRequest struct {
	Data []byte `json:"data"`
}

// StreamStartRequest opens or joins a stream session.
type StreamStartRequest struct {
	ID string `json:"id"`
}

// StreamStartResponse acknowledges streamStart.
type StreamStartResponse struct {
	Success  bool   `json:"success"`
	StreamID string `json:"streamId"`
}

// StreamDataRequest relays data to a stream session.
type StreamDataRequest struct {
	StreamID string          `json:"streamId"`
	Data     json.RawMessage `json:"data"`
}

// StreamData is the payload of streamData delivered to session members.
type StreamData struct {
	StreamID  string          `json:"streamId"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// StreamDataResponse acknowledges streamData.
type StreamDataResponse struct {
	Success    bool `json:"success"`
	Recipients int  `json:"recipients"`
}
