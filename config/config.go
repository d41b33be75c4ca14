package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

var (
	PORT       string
	DB_URL     string
	JWT_SECRET string

	// SEPA creditor settings, required before any batch XML can be generated
	COMPANY_NAME           string
	COMPANY_IBAN           string
	COMPANY_BIC            string
	COMPANY_ACCOUNT_HOLDER string
	CREDITOR_ID            string

	MOLLIE_API_KEY string
	MOLLIE_API_URL string
)

func LoadEnv() {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found. Using system environment variables.")
	}

	PORT = getEnv("PORT", "8080")
	DB_URL = mustEnv("DB_URL")
	JWT_SECRET = mustEnv("JWT_SECRET")

	COMPANY_NAME = getEnv("COMPANY_NAME", "")
	COMPANY_IBAN = getEnv("COMPANY_IBAN", "")
	COMPANY_BIC = getEnv("COMPANY_BIC", "")
	COMPANY_ACCOUNT_HOLDER = getEnv("COMPANY_ACCOUNT_HOLDER", "")
	CREDITOR_ID = getEnv("CREDITOR_ID", "")

	MOLLIE_API_KEY = getEnv("MOLLIE_API_KEY", "")
	MOLLIE_API_URL = getEnv("MOLLIE_API_URL", "https://api.mollie.com/v2")
}

func mustEnv(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("Missing required environment variable: %s", key)
	}
	return v
}

func getEnv(key string, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
