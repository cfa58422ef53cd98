// Package video implements the fragmented, loss-recoverable video delivery
// pipeline: per-frame encryption, chunking for low-latency datagram
// delivery, a short-lived chunk cache, and NACK-driven selective
// retransmission (spec §4.4).
package video

import (
	"encoding/binary"
	"errors"
)

// MaxChunkPayloadBytes is the maximum chunk payload size (spec §4.4).
const MaxChunkPayloadBytes = 1200

// chunkHeaderLen is the fixed header prefix on every video_frame_chunk
// packet payload: frame_id(4) + chunk_index(2) + total_chunks(2).
const chunkHeaderLen = 4 + 2 + 2

// ErrFrameTooLarge is returned when a frame would require more than 65535
// chunks (spec §4.4: "Total chunks MUST fit in u16; oversize frames are
// dropped with a warning").
var ErrFrameTooLarge = errors.New("video: frame exceeds u16 chunk count")

// Fragment splits an already-encrypted frame buffer into chunk payloads,
// each ready to send as the payload of a video_frame_chunk packet. frame_id
// still advances for an oversize frame in the caller's bookkeeping; Fragment
// itself just reports ErrFrameTooLarge so the caller can drop and log.
func Fragment(frameID uint32, frame []byte) ([][]byte, error) {
	if len(frame) == 0 {
		return nil, nil
	}

	total := (len(frame) + MaxChunkPayloadBytes - 1) / MaxChunkPayloadBytes
	if total > 1<<16-1 {
		return nil, ErrFrameTooLarge
	}

	chunks := make([][]byte, 0, total)
	for i := 0; i < total; i++ {
		start := i * MaxChunkPayloadBytes
		end := start + MaxChunkPayloadBytes
		if end > len(frame) {
			end = len(frame)
		}
		chunks = append(chunks, encodeChunk(frameID, uint16(i), uint16(total), frame[start:end]))
	}
	return chunks, nil
}

func encodeChunk(frameID uint32, index, total uint16, payload []byte) []byte {
	buf := make([]byte, chunkHeaderLen+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], frameID)
	binary.BigEndian.PutUint16(buf[4:6], index)
	binary.BigEndian.PutUint16(buf[6:8], total)
	copy(buf[chunkHeaderLen:], payload)
	return buf
}

// Chunk is a parsed video_frame_chunk packet payload.
type Chunk struct {
	FrameID     uint32
	Index       uint16
	TotalChunks uint16
	Payload     []byte
}

// DecodeChunk parses a video_frame_chunk packet payload. The returned
// Payload aliases data's backing array; callers that retain it past the
// lifetime of the datagram buffer must copy.
func DecodeChunk(data []byte) (Chunk, bool) {
	if len(data) < chunkHeaderLen {
		return Chunk{}, false
	}
	return Chunk{
		FrameID:     binary.BigEndian.Uint32(data[0:4]),
		Index:       binary.BigEndian.Uint16(data[4:6]),
		TotalChunks: binary.BigEndian.Uint16(data[6:8]),
		Payload:     data[chunkHeaderLen:],
	}, true
}

// Reassemble concatenates chunk payloads 0..total-1 in order. It returns
// false if any index is missing.
func Reassemble(chunks map[uint16][]byte, total uint16) ([]byte, bool) {
	var size int
	for i := uint16(0); i < total; i++ {
		c, ok := chunks[i]
		if !ok {
			return nil, false
		}
		size += len(c)
	}
	out := make([]byte, 0, size)
	for i := uint16(0); i < total; i++ {
		out = append(out, chunks[i]...)
	}
	return out, true
}

// NACKRequest is the payload of a video_frame_chunk_nack packet (spec
// §4.4, §6).
type NACKRequest struct {
	FrameID             uint32   `json:"frameId"`
	MissingChunkIndices []uint16 `json:"missingChunkIndices"`
}
