package main

import (
	"fmt"
	"io"

	"github.com/discord-agent/orchestrator/pkg/models"
)

// consoleSink is the interactive tester's progress.Observer: it prints
// progress/streaming output to the terminal as it arrives and stashes the
// finalized answer so the REPL loop can fold it into conversation history
// for the next turn.
type consoleSink struct {
	out   io.Writer
	final string
}

func (s *consoleSink) reset() { s.final = "" }

func (s *consoleSink) OnProgress(event *models.ProgressEvent) {
	if event.Message != "" {
		fmt.Fprintf(s.out, "… %s\n", event.Message)
	}
}

func (s *consoleSink) OnStreamingChunk(chunk *models.StreamingChunk) {
	fmt.Fprint(s.out, chunk.Content)
}

func (s *consoleSink) OnStreamingComplete() {
	fmt.Fprintln(s.out)
}

func (s *consoleSink) OnCompletion(finalText string, sources []models.Source) {
	s.final = finalText
	for _, src := range sources {
		fmt.Fprintf(s.out, "  source: %s (%s)\n", src.Title, src.URL)
	}
}

func (s *consoleSink) OnError(err error) {
	fmt.Fprintf(s.out, "error: %v\n", err)
}
