package policy

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"

	"golang.org/x/time/rate"

	"github.com/lessucettes/chatgate/internal/config"
	"github.com/lessucettes/chatgate/internal/event"
)

type MetricsCollector interface {
	Report(res FilterResult)
}

type PipelineStage struct {
	Filter Filter
}

type Pipeline struct {
	classifier      *Classifier
	stages          []PipelineStage
	rejectionLevels map[string]config.LogLevel
	logBlocked      bool
	blockedLog      *rate.Limiter
	collector       MetricsCollector
	wg              sync.WaitGroup
}

func NewPipeline(
	cfg *config.Config,
	classifier *Classifier,
	stages []PipelineStage,
	collector MetricsCollector,
) *Pipeline {
	limit := rate.Inf
	if cfg.Log.BlockedPerSecond > 0 {
		limit = rate.Limit(cfg.Log.BlockedPerSecond)
	}
	return &Pipeline{
		classifier:      classifier,
		stages:          stages,
		rejectionLevels: cfg.Log.RejectionLevels,
		logBlocked:      cfg.Log.LogBlocked,
		blockedLog:      rate.NewLimiter(limit, cfg.Log.BlockedBurst),
		collector:       collector,
	}
}

// NewGatePipeline wires the gate's filters in decision order: global
// whitelist, request passthrough, then the per-category checks. The throttle
// is passed in so it can survive a rebuild.
func NewGatePipeline(cfg *config.Config, lists WhitelistSource, throttle *FeedbackThrottle, collector MetricsCollector) *Pipeline {
	stages := []PipelineStage{
		{Filter: NewGlobalWhitelistFilter(lists)},
		{Filter: NewRequestFilter()},
		{Filter: NewTempSessionFilter(&cfg.Gate, &cfg.Feedback, throttle)},
		{Filter: NewFriendWhitelistFilter(&cfg.Gate.Friend, &cfg.Feedback, lists, throttle)},
		{Filter: NewGroupWhitelistFilter(&cfg.Gate.Group, lists)},
	}
	return NewPipeline(cfg, NewClassifier(&cfg.Gate), stages, collector)
}

// ProcessEvent runs ev through the filters until one allows or blocks it.
// An event no filter claims is accepted. Filter errors and panics block the
// event silently. In dry-run mode blocks are logged and accepted.
func (p *Pipeline) ProcessEvent(
	ctx context.Context,
	ev *event.Event,
	dryRun bool,
) (response PolicyResponse, err error) {
	p.wg.Add(1)
	defer p.wg.Done()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic recovered in filter pipeline",
				"panic", r, "event_id", ev.ID, "origin", ev.Origin, "stack", string(debug.Stack()),
			)
			response = PolicyResponse{ID: ev.ID, Action: ActionReject}
			err = nil
		}
	}()

	kind := p.classifier.Classify(ev)
	meta := map[string]any{
		metaSessionKind: kind,
		metaDryRun:      dryRun,
	}

	for _, stage := range p.stages {
		res, filterErr := stage.Filter.Match(ctx, ev, meta)
		if filterErr != nil {
			slog.Error("Filter execution failed", "error", filterErr, "filter_name", res.Filter, "event_id", ev.ID)
			if dryRun {
				return PolicyResponse{ID: ev.ID, Action: ActionAccept, WouldBlock: true}, filterErr
			}
			return PolicyResponse{ID: ev.ID, Action: ActionReject}, filterErr
		}

		if p.collector != nil {
			reported := res
			if dryRun {
				// Dry runs answer accept, so no notice goes out.
				reported.Feedback = ""
			}
			p.collector.Report(reported)
		}

		switch res.Verdict {
		case Continue:
			continue
		case Allow:
			slog.Debug("Event allowed", "filter_name", res.Filter, "reason", res.Reason,
				"event_id", ev.ID, "session_kind", kind.String())
			return PolicyResponse{ID: ev.ID, Action: ActionAccept}, nil
		}

		logAttrs := []slog.Attr{
			slog.String("filter_name", res.Filter),
			slog.String("event_id", ev.ID),
			slog.String("platform", ev.Platform),
			slog.String("origin", ev.Origin),
			slog.String("sender_id", ev.SenderID),
			slog.String("session_kind", kind.String()),
			slog.String("reason", res.Reason),
			slog.Bool("feedback", res.Feedback != ""),
		}
		if p.logBlocked && p.blockedLog.Allow() {
			logLevel := slog.LevelWarn
			if level, ok := p.rejectionLevels[res.Filter]; ok {
				logLevel = level.ToSlogLevel()
			}
			slog.LogAttrs(ctx, logLevel, "Message blocked", logAttrs...)
		}

		if dryRun {
			slog.LogAttrs(ctx, slog.LevelInfo, "Dry-run: Message would be blocked", logAttrs...)
			return PolicyResponse{ID: ev.ID, Action: ActionAccept, WouldBlock: true}, nil
		}
		return PolicyResponse{ID: ev.ID, Action: ActionReject, Msg: res.Feedback}, nil
	}

	slog.Debug("Event passed every filter", "event_id", ev.ID, "session_kind", kind.String())
	return PolicyResponse{ID: ev.ID, Action: ActionAccept}, nil
}

// Close waits for in-flight events, then closes any filter that holds
// resources.
func (p *Pipeline) Close() error {
	p.wg.Wait()

	for _, stage := range p.stages {
		if closer, ok := stage.Filter.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				slog.Error("Failed to close a filter component", "filter", stage.Filter, "error", err)
			}
		}
	}
	return nil
}
