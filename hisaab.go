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
	"embed"

	"github.com/redis/go-redis/v9"

	"github.com/hisaab-io/hisaab/config"
	"github.com/hisaab-io/hisaab/database"
	"github.com/hisaab-io/hisaab/internal/cache"
	redis_db "github.com/hisaab-io/hisaab/internal/redis-db"
)

//go:embed sql/*.sql
var SQLFiles embed.FS

// Hisaab is the main service struct. All wallet, top-up and settlement
// operations hang off it.
type Hisaab struct {
	queue      *Queue
	redis      redis.UniversalClient
	cache      cache.Cache
	datasource database.IDataSource
}

// NewHisaab initializes a new service instance backed by the provided
// datasource. It fetches the configuration and wires up the Redis client and
// the task queue.
//
// Parameters:
// - db database.IDataSource: The datasource for database operations.
//
// Returns:
// - *Hisaab: A pointer to the newly created instance.
// - error: An error if any of the initialization steps fail.
func NewHisaab(db database.IDataSource) (*Hisaab, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient(configuration.Redis.Dns, configuration.Redis.SkipTLSVerify)
	if err != nil {
		return nil, err
	}
	newCache, err := cache.NewCache()
	if err != nil {
		return nil, err
	}
	newQueue := NewQueue(configuration)
	return &Hisaab{datasource: db, queue: newQueue, redis: redisClient.Client(), cache: newCache}, nil
}
