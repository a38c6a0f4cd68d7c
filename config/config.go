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

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT     = "5401"
	DEFAULT_CURRENCY = "PKR"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"HISAAB_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"HISAAB_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"HISAAB_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"HISAAB_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"HISAAB_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"HISAAB_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"HISAAB_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"HISAAB_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"HISAAB_REDIS_SKIP_TLS_VERIFY"`
}

type QueueConfig struct {
	OutboxQueue     string `json:"outbox_queue" envconfig:"HISAAB_QUEUE_OUTBOX"`
	LockSweepQueue  string `json:"lock_sweep_queue" envconfig:"HISAAB_QUEUE_LOCK_SWEEP"`
	WebhookQueue    string `json:"webhook_queue" envconfig:"HISAAB_QUEUE_WEBHOOK"`
	OutboxBatchSize int    `json:"outbox_batch_size" envconfig:"HISAAB_QUEUE_OUTBOX_BATCH_SIZE"`
	// Cron specs for the periodic tasks, asynq scheduler format.
	OutboxInterval    string `json:"outbox_interval" envconfig:"HISAAB_QUEUE_OUTBOX_INTERVAL"`
	LockSweepInterval string `json:"lock_sweep_interval" envconfig:"HISAAB_QUEUE_LOCK_SWEEP_INTERVAL"`
	MaxRetryAttempts  int    `json:"max_retry_attempts" envconfig:"HISAAB_QUEUE_MAX_RETRY_ATTEMPTS"`
	MonitoringPort    string `json:"monitoring_port" envconfig:"HISAAB_QUEUE_MONITORING_PORT"`
}

// BankSmsConfig authenticates the phone-automation relay that forwards bank
// SMS notifications. A shared secret, not a signature: the relay is a trusted
// machine, not a payment gateway.
type BankSmsConfig struct {
	Secret string `json:"secret" envconfig:"HISAAB_BANK_SMS_SECRET"`
}

type JazzCashConfig struct {
	MerchantID    string `json:"merchant_id" envconfig:"HISAAB_JAZZCASH_MERCHANT_ID"`
	IntegritySalt string `json:"integrity_salt" envconfig:"HISAAB_JAZZCASH_INTEGRITY_SALT"`
	WebhookSecret string `json:"webhook_secret" envconfig:"HISAAB_JAZZCASH_WEBHOOK_SECRET"`
}

type EasypaisaConfig struct {
	StoreID string `json:"store_id" envconfig:"HISAAB_EASYPAISA_STORE_ID"`
	HashKey string `json:"hash_key" envconfig:"HISAAB_EASYPAISA_HASH_KEY"`
}

type TopupLockConfig struct {
	ExpiryMinutes int `json:"expiry_minutes" envconfig:"HISAAB_TOPUP_LOCK_EXPIRY_MINUTES"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"HISAAB_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"HISAAB_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"HISAAB_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type Notification struct {
	Slack   SlackWebhook `json:"slack"`
	Webhook struct {
		Url     string            `json:"url"`
		Headers map[string]string `json:"headers"`
	} `json:"webhook"`
}

type Configuration struct {
	ProjectName  string           `json:"project_name" envconfig:"HISAAB_PROJECT_NAME"`
	Server       ServerConfig     `json:"server"`
	DataSource   DataSourceConfig `json:"data_source"`
	Redis        RedisConfig      `json:"redis"`
	Queue        QueueConfig      `json:"queue"`
	BankSms      BankSmsConfig    `json:"bank_sms"`
	JazzCash     JazzCashConfig   `json:"jazzcash"`
	Easypaisa    EasypaisaConfig  `json:"easypaisa"`
	TopupLock    TopupLockConfig  `json:"topup_lock"`
	RateLimit    RateLimitConfig  `json:"rate_limit"`
	Notification Notification     `json:"notification"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}
	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("hisaab", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called hisaab.json with your config")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Hisaab Server"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Queue.OutboxQueue == "" {
		cnf.Queue.OutboxQueue = "outbox_dispatch"
	}
	if cnf.Queue.LockSweepQueue == "" {
		cnf.Queue.LockSweepQueue = "lock_sweep"
	}
	if cnf.Queue.WebhookQueue == "" {
		cnf.Queue.WebhookQueue = "webhook_queue"
	}
	if cnf.Queue.OutboxBatchSize <= 0 {
		cnf.Queue.OutboxBatchSize = 25
	}
	if cnf.Queue.OutboxInterval == "" {
		cnf.Queue.OutboxInterval = "@every 5s"
	}
	if cnf.Queue.LockSweepInterval == "" {
		cnf.Queue.LockSweepInterval = "@every 5m"
	}
	if cnf.Queue.MaxRetryAttempts <= 0 {
		cnf.Queue.MaxRetryAttempts = 5
	}
	if cnf.Queue.MonitoringPort == "" {
		cnf.Queue.MonitoringPort = "5403"
	}

	if cnf.TopupLock.ExpiryMinutes <= 0 {
		cnf.TopupLock.ExpiryMinutes = 10
	}

	// Rate limiting stays disabled unless at least one of RPS or Burst is set.
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		burst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &burst
	} else if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		rps := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &rps
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		cleanupInterval := 10800
		cnf.RateLimit.CleanupIntervalSec = &cleanupInterval
	}

	if cnf.Server.Secure && cnf.Server.SecretKey == "" {
		return errors.New("secret key is required when secure mode is enabled")
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	mockConfig.applyTestDefaults()
	ConfigStore.Store(mockConfig)
}

func (cnf *Configuration) applyTestDefaults() {
	if cnf.Queue.OutboxQueue == "" {
		cnf.Queue.OutboxQueue = "outbox_dispatch"
	}
	if cnf.Queue.LockSweepQueue == "" {
		cnf.Queue.LockSweepQueue = "lock_sweep"
	}
	if cnf.Queue.WebhookQueue == "" {
		cnf.Queue.WebhookQueue = "webhook_queue"
	}
	if cnf.Queue.OutboxBatchSize <= 0 {
		cnf.Queue.OutboxBatchSize = 25
	}
	if cnf.TopupLock.ExpiryMinutes <= 0 {
		cnf.TopupLock.ExpiryMinutes = 10
	}
	if cnf.Queue.MaxRetryAttempts <= 0 {
		cnf.Queue.MaxRetryAttempts = 5
	}
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
