// cmd/seeder/main.go
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/callforge/dialer-backend/internal/db"
	"github.com/callforge/dialer-backend/internal/model"
	"github.com/callforge/dialer-backend/internal/repository"
)

const demoCSV = `phone_number,first_name,last_name
+15550000001,Alice,Smith
+15550000002,Bob,Jones
+15550000003,Carol,White
+15550000004,Dan,Brown
+15550000005,Eve,Black
`

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("no .env file found, relying on OS environment variables")
	}
	db.Init()

	schema, err := os.ReadFile("migrations/schema.sql")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read schema")
	}
	if _, err := db.DB.Exec(string(schema)); err != nil {
		log.Fatal().Err(err).Msg("failed to apply schema")
	}

	var orgID int
	err = db.DB.QueryRow(
		`INSERT INTO organizations (name, concurrent_call_limit, dials_per_second)
         VALUES ($1, $2, $3) RETURNING id`,
		"Demo Org", 5, 2,
	).Scan(&orgID)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to insert organization")
	}

	if err := os.WriteFile("contacts.csv", []byte(demoCSV), 0o644); err != nil {
		log.Fatal().Err(err).Msg("failed to write demo contacts")
	}

	maxConcurrency := 3
	campaignRepo := &repository.CampaignRepository{DB: db.DB}
	campaign := &model.Campaign{
		OrganizationID: orgID,
		Name:           "Demo Campaign",
		WorkflowID:     1,
		SourceType:     "csv",
		SourceLocator:  "contacts.csv",
		MaxConcurrency: &maxConcurrency,
		RetryConfig:    model.DefaultRetryConfig(),
	}
	if err := campaignRepo.Create(campaign); err != nil {
		log.Fatal().Err(err).Msg("failed to insert campaign")
	}

	log.Info().
		Int("organization_id", orgID).
		Int("campaign_id", campaign.ID).
		Msg("seeded demo data")
}
