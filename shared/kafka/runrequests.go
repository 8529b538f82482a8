package kafka

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"newsbot/orchestrator"
)

// RunRequest asks for a pipeline run. An empty RunDate means today.
type RunRequest struct {
	RunDate string `json:"run_date"`
}

// RunTrigger starts a run synchronously
type RunTrigger interface {
	Run(ctx context.Context, runDate string) (*orchestrator.Result, error)
}

// NewRunRequestHandler decodes run requests and hands them to the trigger.
// Requests that arrive while a run is in progress are marked and dropped: the
// running pipeline already covers the day and a later request resumes it.
func NewRunRequestHandler(trigger RunTrigger, logger *slog.Logger) *TypedMessageHandler[RunRequest] {
	if logger == nil {
		logger = slog.Default()
	}
	return &TypedMessageHandler[RunRequest]{
		Validate: func(msg *RunRequest) bool {
			if msg.RunDate == "" {
				return true
			}
			if _, err := time.Parse(time.DateOnly, msg.RunDate); err != nil {
				logger.Warn("run request with malformed date, skipping", "run_date", msg.RunDate)
				return false
			}
			return true
		},
		Process: func(ctx context.Context, msg *RunRequest) error {
			res, err := trigger.Run(ctx, msg.RunDate)
			switch {
			case errors.Is(err, orchestrator.ErrBusy):
				logger.Warn("run request skipped: a run is in progress", "run_date", msg.RunDate)
				return nil
			case err != nil:
				logger.Error("requested run failed", "run_date", msg.RunDate, "error", err)
				// the run state records the failure; redelivery would only repeat it
				return nil
			}
			logger.Info("requested run finished", "run_date", res.RunDate, "published_posts", res.Counts.PublishedPosts)
			return nil
		},
		AlwaysMark: true,
		Logger:     logger,
	}
}

// NewRunRequestConsumer wires a consumer group on topic to the trigger
func NewRunRequestConsumer(brokers []string, topic, groupID string, trigger RunTrigger, logger *slog.Logger) (*Consumer, error) {
	return NewConsumer(ConsumerConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: groupID,
		Handler: NewRunRequestHandler(trigger, logger),
		Logger:  logger,
	})
}
