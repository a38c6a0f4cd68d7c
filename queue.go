/*
Copyright 2025 Hisaab Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package hisaab

import (
	"context"
	"log"

	"github.com/hibiken/asynq"

	"github.com/hisaab-io/hisaab/config"
	redis_db "github.com/hisaab-io/hisaab/internal/redis-db"
)

// Queue wraps the asynq client used to schedule background work: outbox
// dispatch rounds, lock sweeps and webhook deliveries.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// NewQueue initializes a new Queue instance with the provided configuration.
func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB, TLSConfig: redisOption.TLSConfig}
	client := asynq.NewClient(queueOptions)
	inspector := asynq.NewInspector(queueOptions)
	return &Queue{
		Client:    client,
		Inspector: inspector,
	}
}

// EnqueueOutboxDispatch schedules an immediate outbox dispatch round, on top
// of the periodic rounds the scheduler runs. Called after a confirmation so
// the event leaves the outbox without waiting for the next tick.
func (q *Queue) EnqueueOutboxDispatch(ctx context.Context) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}
	task := asynq.NewTask(cfg.Queue.OutboxQueue, nil, asynq.Queue(cfg.Queue.OutboxQueue))
	info, err := q.Client.EnqueueContext(ctx, task, asynq.MaxRetry(cfg.Queue.MaxRetryAttempts))
	if err != nil {
		log.Println(err, info)
		return err
	}
	return nil
}

// EnqueueLockSweep schedules an immediate sweep of expired top-up locks.
func (q *Queue) EnqueueLockSweep(ctx context.Context) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}
	task := asynq.NewTask(cfg.Queue.LockSweepQueue, nil, asynq.Queue(cfg.Queue.LockSweepQueue))
	info, err := q.Client.EnqueueContext(ctx, task, asynq.MaxRetry(cfg.Queue.MaxRetryAttempts))
	if err != nil {
		log.Println(err, info)
		return err
	}
	return nil
}
