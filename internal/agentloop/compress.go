package agentloop

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/xonecas/agentcore/internal/messagestore"
	"github.com/xonecas/agentcore/internal/provider"
)

// compressionInstruction primes the same Provider used for the turn into
// acting as the "external summarizer" original §4.6.3 calls out; no pack
// repo implements history compression, so this prompt has no teacher
// precedent and is written directly from the spec's requirement that the
// summary "preserve facts, decisions, file paths, and outstanding tasks."
const compressionInstruction = "Summarize the following conversation excerpt concisely. " +
	"Preserve facts, decisions, file paths, and outstanding tasks the assistant " +
	"will need later. Respond with the summary text only, no preamble."

// selectCompressionWindow finds the oldest windowSize messages that have
// not yet been folded into a Compress block and the index a new Compress
// block must be inserted at. Unlike the source, Tool blocks live inside
// their enclosing assistant Message rather than as separate Messages, so
// every Message boundary is already "safe" (original §4.6.3's boundary
// rule against splitting an assistant Message from its tool Messages is
// automatically satisfied here).
func selectCompressionWindow(messages []*messagestore.Message, windowSize int) ([]*messagestore.Message, int, bool) {
	if windowSize <= 0 {
		windowSize = 7
	}
	start := latestCompressIndex(messages)
	if start > 0 {
		// latestCompressIndex points at the Compress message itself; the
		// uncompressed prefix begins right after it.
		start++
	}
	remaining := messages[start:]
	if len(remaining) < windowSize {
		return nil, 0, false
	}
	window := remaining[:windowSize]
	return window, start + windowSize, true
}

// maybeCompress appends a Compress block when the just-observed usage
// exceeds the configured token limit, per original §4.6.3. Summarizer
// failure is logged and swallowed — compression is skipped, not fatal.
func (l *Loop) maybeCompress(ctx context.Context, resp *provider.ChatResponse) {
	total := resp.InputTokens + resp.OutputTokens
	if l.opts.TokenLimit <= 0 || total <= l.opts.TokenLimit {
		return
	}

	messages := l.opts.Store.Messages()
	window, insertIndex, ok := selectCompressionWindow(messages, l.opts.CompressionWindow)
	if !ok {
		return
	}

	payload := BuildPayload(window)
	if len(payload) == 0 {
		return
	}

	summary, err := l.summarize(ctx, payload)
	if err != nil {
		log.Warn().Err(err).Msg("agentloop: compression summarizer failed, skipping")
		return
	}

	l.opts.Store.AppendCompressBlock(insertIndex, summary)
}

func (l *Loop) summarize(ctx context.Context, window []provider.Message) (string, error) {
	history := append([]provider.Message{{Role: "user", Content: compressionInstruction}}, window...)

	stream, err := l.opts.Provider.ChatStream(ctx, history, nil)
	if err != nil {
		return "", err
	}

	var content strings.Builder
	for evt := range stream {
		switch evt.Type {
		case provider.EventContentDelta:
			content.WriteString(evt.Content)
		case provider.EventError:
			return "", evt.Err
		}
	}

	if content.Len() == 0 {
		return "", fmt.Errorf("summarizer returned an empty response")
	}
	return content.String(), nil
}
