package testutil

import (
	"bytes"
	"context"
	"io"

	"github.com/opencode-ai/chathost/internal/host"
	"github.com/opencode-ai/chathost/internal/part"
	"github.com/opencode-ai/chathost/internal/stream"
	"github.com/opencode-ai/chathost/pkg/wire"
)

// EchoHandler streams the request message back as a single markdown part.
func EchoHandler(ctx context.Context, req *host.Request, ictx *host.InvocationContext, out *stream.Stream) (*wire.InvocationResult, error) {
	if err := out.Append(part.Markdown{Content: req.Message}); err != nil {
		return nil, err
	}
	return &wire.InvocationResult{}, nil
}

func jsonBody(data []byte) io.Reader {
	return bytes.NewReader(data)
}
