package chainwebclient

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"chainweb-indexer/pkg/errs"
)

// readSSE is a minimal Server-Sent Events reader: no library in the
// example pack speaks SSE, so this reads the wire format directly per the
// spec (a blank line terminates an event; "event:" names its type,
// "data:" lines accumulate, joined by "\n"). Only events whose type is
// "BlockHeader" are decoded and published; everything else (comments,
// "cut" events, keep-alives) is skipped. When ctx is cancelled or reading
// fails, errc receives an errs.StreamEnded error; when the node closes the
// connection cleanly, errc receives nil.
func readSSE(ctx context.Context, r io.Reader, log *logrus.Logger, events chan<- BlockHeaderEvent, errc chan<- error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var eventType string
	var dataLines []string

	flush := func() {
		if eventType != "BlockHeader" || len(dataLines) == 0 {
			eventType = ""
			dataLines = nil
			return
		}
		data := strings.Join(dataLines, "\n")
		var evt BlockHeaderEvent
		if err := json.Unmarshal([]byte(data), &evt); err != nil {
			log.WithError(err).Warn("dropping malformed header event")
			eventType = ""
			dataLines = nil
			return
		}
		select {
		case events <- evt:
		case <-ctx.Done():
		}
		eventType = ""
		dataLines = nil
	}

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			errc <- errs.NewStreamEnded(ctx.Err())
			return
		default:
		}

		line := scanner.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive, ignore
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		errc <- errs.NewStreamEnded(err)
		return
	}
	// Clean end-of-stream is not an error condition: the caller decides
	// whether to reconnect.
	errc <- nil
}
