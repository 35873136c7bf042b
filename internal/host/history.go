package host

import (
	"github.com/opencode-ai/chathost/internal/logging"
	"github.com/opencode-ai/chathost/internal/part"
	"github.com/opencode-ai/chathost/pkg/wire"
)

// buildHistory revives stored turns into typed form. Response parts are
// decoded through the codec; a turn whose parts are malformed is kept with
// an empty response rather than dropped, so turn ordering survives.
func buildHistory(codec *part.Codec, turns []wire.HistoryTurn) []Turn {
	out := make([]Turn, 0, len(turns))
	for _, t := range turns {
		parts, err := codec.DecodeHistoryParts(t.Response)
		if err != nil {
			logging.Debug().Err(err).Str("requestId", t.Request.RequestID).Msg("skipping undecodable history parts")
		}
		out = append(out, Turn{
			Request:  t.Request,
			Response: parts,
			Result:   t.Result,
		})
	}
	return out
}
