package database

import (
	"database/sql"
	"log"
	"sync"

	_ "github.com/lib/pq"

	"github.com/hisaab-io/hisaab/config"
)

// Declare a package-level variable to hold the singleton instance.
// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn *sql.DB
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		instance = &Datasource{Conn: con}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}
	err = db.Ping()
	if err != nil {
		log.Printf("database connection error: %v", err)
		return nil, err
	}
	if err := CreateSchema(db); err != nil {
		return nil, err
	}
	return db, nil
}

// CreateSchema bootstraps all tables and indexes. Every statement is
// idempotent so repeated startups are safe.
func CreateSchema(db *sql.DB) error {
	for _, create := range []func(*sql.DB) error{
		createWalletTable,
		createWalletTransactionTable,
		createTopUpTable,
		createTopupLockTable,
		createOutboxTable,
		createBankSmsTable,
	} {
		if err := create(db); err != nil {
			return err
		}
	}
	return nil
}

func createWalletTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS wallets (
			id SERIAL PRIMARY KEY,
			wallet_id TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			currency TEXT NOT NULL,
			balance NUMERIC(20,4) NOT NULL DEFAULT 0 CHECK (balance >= 0),
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
			UNIQUE (user_id, currency)
		)
	`)
	if err != nil {
		log.Printf("Error creating wallets table: %v", err)
	}
	return err
}

func createWalletTransactionTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS wallet_transactions (
			id SERIAL PRIMARY KEY,
			transaction_id TEXT NOT NULL UNIQUE,
			wallet_id TEXT NOT NULL REFERENCES wallets(wallet_id),
			type TEXT NOT NULL CHECK (type IN ('CREDIT', 'DEBIT')),
			amount NUMERIC(20,4) NOT NULL CHECK (amount > 0),
			currency TEXT NOT NULL,
			reason TEXT,
			reference_id TEXT,
			reference_type TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		log.Printf("Error creating wallet_transactions table: %v", err)
	}
	return err
}

func createTopUpTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS top_ups (
			id SERIAL PRIMARY KEY,
			top_up_id TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			wallet_id TEXT NOT NULL REFERENCES wallets(wallet_id),
			amount NUMERIC(20,4) NOT NULL CHECK (amount > 0),
			currency TEXT NOT NULL,
			channel TEXT NOT NULL,
			status TEXT NOT NULL,
			external_reference TEXT,
			failure_reason TEXT,
			transaction_id TEXT,
			requested_at TIMESTAMP NOT NULL DEFAULT NOW(),
			confirmed_at TIMESTAMP,
			failed_at TIMESTAMP
		)
	`)
	if err != nil {
		log.Printf("Error creating top_ups table: %v", err)
		return err
	}
	// One settlement reference can confirm at most one top-up.
	_, err = db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_top_ups_confirmed_reference
		ON top_ups (external_reference)
		WHERE status = 'CONFIRMED' AND external_reference IS NOT NULL AND external_reference <> ''
	`)
	if err != nil {
		log.Printf("Error creating confirmed reference index: %v", err)
	}
	return err
}

func createTopupLockTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS wallet_topup_locks (
			id SERIAL PRIMARY KEY,
			lock_id TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			amount NUMERIC(20,4) NOT NULL CHECK (amount > 0),
			currency TEXT NOT NULL,
			status TEXT NOT NULL CHECK (status IN ('LOCKED', 'COMPLETED', 'EXPIRED')),
			transaction_reference TEXT NOT NULL UNIQUE,
			locked_at TIMESTAMP NOT NULL DEFAULT NOW(),
			expires_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		log.Printf("Error creating wallet_topup_locks table: %v", err)
	}
	return err
}

func createOutboxTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS outbox_messages (
			id SERIAL PRIMARY KEY,
			message_id TEXT NOT NULL UNIQUE,
			type TEXT NOT NULL,
			payload JSONB NOT NULL,
			occurred_on TIMESTAMP NOT NULL DEFAULT NOW(),
			processed BOOLEAN NOT NULL DEFAULT FALSE,
			processed_on TIMESTAMP,
			error TEXT
		)
	`)
	if err != nil {
		log.Printf("Error creating outbox_messages table: %v", err)
	}
	return err
}

func createBankSmsTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bank_sms_payments (
			id SERIAL PRIMARY KEY,
			sms_id TEXT NOT NULL UNIQUE,
			raw_text TEXT NOT NULL,
			amount NUMERIC(20,4),
			currency TEXT,
			transaction_ref TEXT,
			sender_name TEXT,
			sender_phone TEXT,
			paid_at TIMESTAMP,
			processed BOOLEAN NOT NULL DEFAULT FALSE,
			processing_result TEXT,
			lock_id TEXT,
			user_id TEXT,
			wallet_id TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		log.Printf("Error creating bank_sms_payments table: %v", err)
	}
	return err
}
