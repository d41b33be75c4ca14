package database

import (
	"fmt"
	"log"
	"os"

	"membership-app/internal/domain/batches"
	"membership-app/internal/domain/invoices"
	"membership-app/internal/domain/mandates"
	"membership-app/internal/domain/members"
	"membership-app/internal/domain/schedules"
	"membership-app/internal/domain/users"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

func InitDB() {
	dsn := os.Getenv("DB_URL")
	if dsn == "" {
		log.Fatal("❌ DB_URL not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("❌ Failed to connect to database:", err)
	}

	DB = db

	if err := DB.AutoMigrate(
		// core
		&users.User{},
		&members.Member{},
		&members.IBANHistory{},

		// SEPA
		&mandates.SEPAMandate{},
		&mandates.MandateUsage{},
		&schedules.DuesSchedule{},

		// accounting
		&invoices.SalesInvoice{},
		&invoices.PaymentEntry{},

		// direct debit
		&batches.DirectDebitBatch{},
		&batches.BatchInvoice{},
	); err != nil {
		log.Fatal("❌ AutoMigrate error:", err)
	}

	fmt.Println("✅ Connected and migrated successfully")
}
