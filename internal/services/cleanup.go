package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
)

// TypeDeleteHuddleData is the asynq task fired after a declined huddle
// ages out. Delivery is at-least-once; the handler is idempotent.
const TypeDeleteHuddleData = "huddle:delete_session_data"

type deleteHuddlePayload struct {
	SessionID uint `json:"session_id"`
}

// CleanupScheduler enqueues deferred hard-deletes of huddle records on
// an asynq queue backed by Redis.
type CleanupScheduler struct {
	client *asynq.Client
}

func NewCleanupScheduler(redisURL string) (*CleanupScheduler, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, err
	}
	return &CleanupScheduler{client: asynq.NewClient(opt)}, nil
}

var _ Scheduler = (*CleanupScheduler)(nil)

func (c *CleanupScheduler) ScheduleSessionDelete(sessionID uint, delay time.Duration) error {
	payload, err := json.Marshal(deleteHuddlePayload{SessionID: sessionID})
	if err != nil {
		return err
	}
	task := asynq.NewTask(TypeDeleteHuddleData, payload)
	info, err := c.client.Enqueue(task, asynq.ProcessIn(delay), asynq.MaxRetry(3))
	if err != nil {
		return err
	}
	log.Debug().Str("task_id", info.ID).Uint("session_id", sessionID).
		Dur("delay", delay).Msg("huddle: cleanup scheduled")
	return nil
}

func (c *CleanupScheduler) Close() error {
	return c.client.Close()
}

// NewCleanupWorker builds the asynq server+mux that consumes cleanup
// tasks and hands them to the huddle service.
func NewCleanupWorker(redisURL string, huddles *HuddleService) (*asynq.Server, *asynq.ServeMux, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, nil, err
	}

	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: 5,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Error().Err(err).Str("type", task.Type()).Msg("cleanup worker: task failed")
		}),
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeDeleteHuddleData, func(ctx context.Context, t *asynq.Task) error {
		var payload deleteHuddlePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return err
		}
		return huddles.DeleteSessionData(payload.SessionID)
	})
	return srv, mux, nil
}
