package usecase

import (
	"log/slog"
	"slices"
	"strings"
	"time"

	"iatbridge/internal/domain"
	"iatbridge/internal/errorsx"
)

type partialSlot struct {
	words     []string
	retracted bool
}

// transcriptAggregator merges partial results keyed by sequence number.
// It is owned by a single session and is not safe for concurrent use.
type transcriptAggregator struct {
	slots map[int]*partialSlot
	sid   string
	text  string
}

func newTranscriptAggregator() *transcriptAggregator {
	return &transcriptAggregator{slots: make(map[int]*partialSlot)}
}

// Apply folds one server message into the transcript. A non-zero code aborts with a ProtocolError.
func (a *transcriptAggregator) Apply(msg domain.InboundMessage) error {
	if msg.SID != "" {
		a.sid = msg.SID
	}
	if msg.Code != 0 {
		return errorsx.NewProtocolError(msg.Code, msg.Message, msg.SID)
	}
	if msg.Result == nil {
		return nil
	}

	result := msg.Result
	a.slots[result.Seq] = &partialSlot{words: append([]string(nil), result.Words...)}

	if result.Replace {
		for _, seq := range result.Invalidate {
			if slot, ok := a.slots[seq]; ok {
				slot.retracted = true
			}
		}
	}

	a.rebuild()
	return nil
}

func (a *transcriptAggregator) Snapshot() domain.Transcript {
	return domain.Transcript{Text: a.text, SID: a.sid}
}

func (a *transcriptAggregator) rebuild() {
	live := make([]int, 0, len(a.slots))
	for seq, slot := range a.slots {
		if !slot.retracted {
			live = append(live, seq)
		}
	}
	slices.Sort(live)

	var builder strings.Builder
	for _, seq := range live {
		for _, word := range a.slots[seq].words {
			builder.WriteString(word)
		}
	}
	a.text = builder.String()
}

// consumeServerMessages applies inbound messages in arrival order. After the final
// segment it closes the outbound side and keeps applying messages until the
// connection closes or the drain window ends.
func (r *streamRun) consumeServerMessages() error {
	for {
		payload, err := r.conn.ReadMessage()
		if err != nil {
			if r.final.Load() {
				return nil
			}
			return err
		}

		msg, err := r.protocol.DecodeMessage(payload)
		if err != nil {
			return err
		}
		if err := r.aggregator.Apply(msg); err != nil {
			return err
		}

		if msg.Result != nil {
			text := r.aggregator.Snapshot().Text
			r.session.logger.Debug("result_applied",
				slog.Int("sn", msg.Result.Seq),
				slog.Bool("replace", msg.Result.Replace),
				slog.Any("invalidate", msg.Result.Invalidate))
			r.session.observer.PartialTranscript(r.session.id, text)
		}

		if msg.Final && !r.final.Swap(true) {
			r.session.logger.Info("final_segment_received", slog.String("sid", msg.SID))
			if err := r.conn.CloseSend(); err != nil {
				r.session.logger.Debug("close_send_failed", slog.String("error", err.Error()))
			}
			_ = r.conn.SetReadDeadline(time.Now().Add(r.drain))
		}
	}
}
