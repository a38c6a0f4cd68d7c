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

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/hisaab-io/hisaab"
	"github.com/hisaab-io/hisaab/config"
	redis_db "github.com/hisaab-io/hisaab/internal/redis-db"
)

// processOutboxDispatch runs one outbox delivery round. Messages that fail
// delivery stay queued with their error recorded, so returning the error here
// lets asynq retry the whole round.
func (h *hisaabInstance) processOutboxDispatch(ctx context.Context, _ *asynq.Task) error {
	ctx, span := otel.Tracer("hisaab.outbox.worker").Start(ctx, "Dispatch Outbox Round")
	defer span.End()

	dispatched, err := h.hisaab.DispatchOutbox(ctx, h.cnf.Queue.OutboxBatchSize)
	if err != nil {
		logrus.Error(err)
		return err
	}
	if dispatched > 0 {
		log.Println(" [*] Outbox messages dispatched", dispatched)
	}
	return nil
}

// processLockSweep expires top-up locks whose reservation window has passed.
func (h *hisaabInstance) processLockSweep(ctx context.Context, _ *asynq.Task) error {
	ctx, span := otel.Tracer("hisaab.locks.worker").Start(ctx, "Sweep Expired Locks")
	defer span.End()

	swept, err := h.hisaab.SweepExpiredLocks(ctx)
	if err != nil {
		logrus.Error(err)
		return err
	}
	if swept > 0 {
		log.Println(" [*] Expired locks swept", swept)
	}
	return nil
}

func initializeQueues(cfg *config.Configuration) map[string]int {
	queues := make(map[string]int)
	queues[cfg.Queue.WebhookQueue] = 3
	queues[cfg.Queue.OutboxQueue] = 2
	queues[cfg.Queue.LockSweepQueue] = 1
	return queues
}

func initializeWorkerServer(conf *config.Configuration, queues map[string]int) (*asynq.Server, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:      redisOption.Addr,
			Password:  redisOption.Password,
			DB:        redisOption.DB,
			TLSConfig: redisOption.TLSConfig,
		},
		asynq.Config{
			Concurrency: 1,
			Queues:      queues,
		},
	), nil
}

func initializeTaskHandlers(h *hisaabInstance, mux *asynq.ServeMux) {
	mux.HandleFunc(h.cnf.Queue.OutboxQueue, h.processOutboxDispatch)
	mux.HandleFunc(h.cnf.Queue.LockSweepQueue, h.processLockSweep)
	mux.HandleFunc(h.cnf.Queue.WebhookQueue, hisaab.ProcessWebhook)
}

// initializeScheduler registers the periodic outbox dispatch and lock sweep
// tasks. Confirmations also enqueue immediate rounds; the schedule is the
// safety net that drains anything those missed.
func initializeScheduler(conf *config.Configuration) (*asynq.Scheduler, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	scheduler := asynq.NewScheduler(
		asynq.RedisClientOpt{
			Addr:      redisOption.Addr,
			Password:  redisOption.Password,
			DB:        redisOption.DB,
			TLSConfig: redisOption.TLSConfig,
		},
		&asynq.SchedulerOpts{},
	)

	_, err = scheduler.Register(conf.Queue.OutboxInterval,
		asynq.NewTask(conf.Queue.OutboxQueue, nil, asynq.Queue(conf.Queue.OutboxQueue)))
	if err != nil {
		return nil, err
	}
	_, err = scheduler.Register(conf.Queue.LockSweepInterval,
		asynq.NewTask(conf.Queue.LockSweepQueue, nil, asynq.Queue(conf.Queue.LockSweepQueue)))
	if err != nil {
		return nil, err
	}

	return scheduler, nil
}

// workerCommands defines the "workers" command. The workers drain the outbox,
// expire stale top-up locks and deliver webhooks.
func workerCommands(h *hisaabInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start hisaab workers",
		Run: func(cmd *cobra.Command, args []string) {
			conf, err := config.Fetch()
			if err != nil {
				log.Fatal("Error fetching config:", err)
			}

			queues := initializeQueues(conf)

			srv, err := initializeWorkerServer(conf, queues)
			if err != nil {
				log.Fatal(err)
			}

			mux := asynq.NewServeMux()
			initializeTaskHandlers(h, mux)

			scheduler, err := initializeScheduler(conf)
			if err != nil {
				log.Fatal(err)
			}
			go func() {
				if err := scheduler.Run(); err != nil {
					log.Fatalf("could not run scheduler: %v", err)
				}
			}()

			// Asynqmon for queue health checks and monitoring.
			redisOption, _ := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
			mon := asynqmon.New(asynqmon.Options{
				RootPath: "/monitoring",
				RedisConnOpt: asynq.RedisClientOpt{
					Addr:      redisOption.Addr,
					Password:  redisOption.Password,
					DB:        redisOption.DB,
					TLSConfig: redisOption.TLSConfig,
				},
			})

			go func() {
				monitoringAddr := fmt.Sprintf(":%s", conf.Queue.MonitoringPort)
				log.Printf("Asynqmon server listening on %s/monitoring", monitoringAddr)
				if err := http.ListenAndServe(monitoringAddr, mon); err != nil {
					log.Fatalf("could not start asynqmon server: %v", err)
				}
			}()

			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run server: %v", err)
			}
		},
	}

	return cmd
}
