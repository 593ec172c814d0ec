package api

import (
	"context"
	"time"

	"github.com/vishalSecmark/tradewebx-sub002/internal/errors"
	"github.com/vishalSecmark/tradewebx-sub002/internal/logger"
	"github.com/vishalSecmark/tradewebx-sub002/internal/parser"
)

// ChunkResult is the terminal outcome of one chunk after retries.
type ChunkResult struct {
	ChunkIndex int           `json:"chunkIndex"`
	Success    bool          `json:"success"`
	Error      string        `json:"error,omitempty"`
	RetryCount int           `json:"retryCount"`
	Records    int           `json:"records"`
	Rejections []Rejection   `json:"rejections,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// UploadMeta is the per-file context sent with every chunk.
type UploadMeta struct {
	Target   Target
	FileName string
	Headers  []string
	Filters  map[string]string
	Extra    map[string]interface{}
}

type chunkPayload struct {
	parser.ChunkData
	TargetID string                 `json:"targetId"`
	FileType string                 `json:"fileType"`
	FileName string                 `json:"fileName"`
	Headers  []string               `json:"headers"`
	Extra    map[string]interface{} `json:"metadata,omitempty"`
}

// ChunkUploader posts chunks with a bounded retry budget.
type ChunkUploader struct {
	client *Client
	policy *errors.RetryPolicy
	logger *logger.Logger
}

// NewChunkUploader creates an uploader. A nil policy uses
// errors.DefaultRetryPolicy.
func NewChunkUploader(client *Client, policy *errors.RetryPolicy, log *logger.Logger) *ChunkUploader {
	if policy == nil {
		policy = errors.DefaultRetryPolicy
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ChunkUploader{
		client: client,
		policy: policy,
		logger: log.With("component", "uploader"),
	}
}

// Policy returns the retry policy in use.
func (u *ChunkUploader) Policy() *errors.RetryPolicy {
	return u.policy
}

// Upload sends one chunk, retrying transient failures up to
// policy.MaxRetries more times. The chunk is never modified.
func (u *ChunkUploader) Upload(ctx context.Context, chunk parser.ChunkData, meta UploadMeta) ChunkResult {
	start := time.Now()
	result := ChunkResult{
		ChunkIndex: chunk.ChunkIndex,
		Records:    chunk.Len(),
	}

	req := &Request{
		Action:  ActionImportChunk,
		Filters: meta.Filters,
		Payload: chunkPayload{
			ChunkData: chunk,
			TargetID:  meta.Target.ID,
			FileType:  meta.Target.FileType,
			FileName:  meta.FileName,
			Headers:   meta.Headers,
			Extra:     meta.Extra,
		},
	}

	attempts := u.policy.Attempts()
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := u.policy.Wait(ctx, attempt); err != nil {
				lastErr = err
				break
			}
			result.RetryCount = attempt
		}

		resp, err := u.send(ctx, req)
		if err == nil {
			result.Success = true
			result.Error = ""
			result.Rejections = resp.Rejections()
			result.Duration = time.Since(start)

			u.logger.Debug("Chunk uploaded",
				"chunk", chunk.ChunkIndex,
				"records", chunk.Len(),
				"retries", result.RetryCount,
				"rejections", len(result.Rejections))
			return result
		}

		lastErr = err
		if ctx.Err() != nil || !errors.IsTemporary(err) {
			break
		}

		if attempt+1 < attempts {
			u.logger.Warn("Chunk upload failed, retrying",
				"chunk", chunk.ChunkIndex,
				"attempt", attempt+1,
				"delay", u.policy.Delay(attempt+1),
				"status", errors.StatusCode(err),
				"error", errors.Message(err))
		}
	}

	result.Error = errors.Message(lastErr)
	result.Duration = time.Since(start)

	u.logger.Debug("Chunk failed",
		"chunk", chunk.ChunkIndex,
		"retries", result.RetryCount,
		"error", result.Error)
	return result
}

func (u *ChunkUploader) send(ctx context.Context, req *Request) (*Response, error) {
	if err := u.client.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}
	return u.client.Do(ctx, u.client.config.UploadPath, req)
}
