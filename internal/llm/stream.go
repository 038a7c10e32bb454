package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Chunk is one streamed fragment of an answer. Err marks the terminal error
// fragment appended when generation fails mid-stream; the channel closes
// immediately after it.
type Chunk struct {
	// Text is the fragment content: answer tokens, or the in-band error
	// notice on the final chunk of a failed stream.
	Text string

	// Err reports whether this fragment is the in-band error notice.
	Err bool
}

// StreamChat streams an answer token by token on the returned channel. The
// stream is finite and not restartable: the channel always closes, and on
// failure the last chunk carries an in-band error notice instead of an error
// value. By the time generation fails the response is already committed to
// streaming, so the consumer keeps the partial answer plus the notice rather
// than losing both. Stops promptly when ctx is cancelled.
func (c *Client) StreamChat(ctx context.Context, msgs []*schema.Message, modelName string) <-chan Chunk {
	out := make(chan Chunk)

	go func() {
		defer close(out)

		sr, err := c.model.Stream(ctx, msgs, model.WithModel(c.ResolveModel(ctx, modelName)))
		if err != nil {
			emit(ctx, out, Chunk{Text: errorNotice(err), Err: true})
			return
		}
		defer sr.Close()

		for {
			msg, err := sr.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				// A cancelled consumer is gone; there is nobody left to
				// read an error notice.
				if ctx.Err() != nil {
					return
				}
				emit(ctx, out, Chunk{Text: errorNotice(err), Err: true})
				return
			}
			if msg == nil || msg.Content == "" {
				continue
			}
			if !emit(ctx, out, Chunk{Text: msg.Content}) {
				return
			}
		}
	}()

	return out
}

// emit sends ch on out unless ctx is cancelled first. Reports whether the
// send happened.
func emit(ctx context.Context, out chan<- Chunk, ch Chunk) bool {
	select {
	case out <- ch:
		return true
	case <-ctx.Done():
		return false
	}
}

// errorNotice renders err as the in-band terminal fragment of a failed
// stream.
func errorNotice(err error) string {
	return fmt.Sprintf("\n\n[Error generating response: %v]", err)
}
