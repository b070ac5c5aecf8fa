package openai

import (
	"context"
	"errors"
	"io"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/mkarpenko/grounded-chat/internal/core/domain"
)

// deferredStream holds a fully built streaming request that goes on the
// wire only when Start is called.
type deferredStream struct {
	api *goopenai.Client
	req goopenai.ChatCompletionRequest
}

func (d *deferredStream) Start(ctx context.Context) (domain.StreamHandle, error) {
	stream, err := d.api.CreateChatCompletionStream(ctx, d.req)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCollaborator, "start answer stream", err)
	}
	return &streamHandle{stream: stream}, nil
}

type streamHandle struct {
	stream *goopenai.ChatCompletionStream
}

func (h *streamHandle) Recv() (domain.StreamChunk, error) {
	for {
		resp, err := h.stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return domain.StreamChunk{}, io.EOF
			}
			return domain.StreamChunk{}, domain.WrapError(domain.ErrStreamConsumption, "recv answer chunk", err)
		}
		// Azure deployments emit housekeeping chunks with an empty choices
		// array: a content-filter preamble, and a trailing usage chunk.
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		return domain.StreamChunk{
			Delta:        choice.Delta.Content,
			FinishReason: string(choice.FinishReason),
		}, nil
	}
}

func (h *streamHandle) Close() error {
	return h.stream.Close()
}
