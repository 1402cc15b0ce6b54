package chainwebclient

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestReadSSEParsesBlockHeaderEvents(t *testing.T) {
	body := "" +
		"event: BlockHeader\n" +
		"data: {\"header\":{\"chainId\":1,\"hash\":\"abc\",\"height\":42}}\n" +
		"\n" +
		"event: cut\n" +
		"data: {\"ignored\":true}\n" +
		"\n"

	log := logrus.New()
	log.SetOutput(io.Discard)
	events := make(chan BlockHeaderEvent, 4)
	errc := make(chan error, 1)

	readSSE(context.Background(), strings.NewReader(body), log, events, errc)

	close(events)
	var got []BlockHeaderEvent
	for e := range events {
		got = append(got, e)
	}

	if len(got) != 1 {
		t.Fatalf("want 1 BlockHeader event, got %d", len(got))
	}
	if got[0].Header.Hash != "abc" || got[0].Header.Height != 42 {
		t.Fatalf("unexpected header: %+v", got[0].Header)
	}

	if err := <-errc; err != nil {
		t.Fatalf("want nil terminal error on clean end, got %v", err)
	}
}

func TestReadSSEDropsMalformedEvent(t *testing.T) {
	body := "event: BlockHeader\ndata: not-json\n\n"
	log := logrus.New()
	log.SetOutput(io.Discard)
	events := make(chan BlockHeaderEvent, 1)
	errc := make(chan error, 1)

	readSSE(context.Background(), strings.NewReader(body), log, events, errc)
	close(events)

	for range events {
		t.Fatalf("expected no events from malformed payload")
	}
	if err := <-errc; err != nil {
		t.Fatalf("want nil terminal error, got %v", err)
	}
}
