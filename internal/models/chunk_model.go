package models

import (
	"fmt"
	"sync/atomic"
)

// ChunkPlan splits TotalSize bytes into ChunkCount ranges of ChunkSize, the
// last one possibly shorter.
type ChunkPlan struct {
	TotalSize  int64 `json:"total_size"`
	ChunkSize  int64 `json:"chunk_size"`
	ChunkCount int   `json:"chunk_count"`
}

// PlanChunks sends the whole file as one chunk when it fits in maxChunkSize,
// otherwise equal maxChunkSize chunks followed by a smaller remainder.
func PlanChunks(totalSize, maxChunkSize int64) (ChunkPlan, error) {
	if totalSize <= 0 {
		return ChunkPlan{}, fmt.Errorf("video size must be positive, got %d", totalSize)
	}
	if maxChunkSize <= 0 {
		return ChunkPlan{}, fmt.Errorf("chunk size must be positive, got %d", maxChunkSize)
	}

	if totalSize <= maxChunkSize {
		return ChunkPlan{TotalSize: totalSize, ChunkSize: totalSize, ChunkCount: 1}, nil
	}

	count := (totalSize + maxChunkSize - 1) / maxChunkSize
	return ChunkPlan{TotalSize: totalSize, ChunkSize: maxChunkSize, ChunkCount: int(count)}, nil
}

// Range returns the byte offset and length of chunk i.
func (p ChunkPlan) Range(i int) (offset, length int64) {
	offset = int64(i) * p.ChunkSize
	length = p.ChunkSize
	if rest := p.TotalSize - offset; rest < length {
		length = rest
	}
	return offset, length
}

// ContentRange formats the Content-Range header value for chunk i.
func (p ChunkPlan) ContentRange(i int) string {
	offset, length := p.Range(i)
	return fmt.Sprintf("bytes %d-%d/%d", offset, offset+length-1, p.TotalSize)
}

// UploadSessionState lives for one upload and is discarded after finalize.
type UploadSessionState struct {
	PublishID  string
	UploadURL  string
	Plan       ChunkPlan
	chunksSent atomic.Int64
}

func NewUploadSessionState(publishID, uploadURL string, plan ChunkPlan) *UploadSessionState {
	return &UploadSessionState{PublishID: publishID, UploadURL: uploadURL, Plan: plan}
}

func (s *UploadSessionState) ChunksSent() int {
	return int(s.chunksSent.Load())
}

func (s *UploadSessionState) MarkChunkSent() int {
	return int(s.chunksSent.Add(1))
}

func (s *UploadSessionState) Complete() bool {
	return s.ChunksSent() == s.Plan.ChunkCount
}
