package main

import (
	"context"
	"log"

	"gomatch/adapters/postgres"
	"gomatch/app"
	"gomatch/internal"
	"gomatch/internal/config"
	"gomatch/internal/errors"
	"gomatch/internal/migration"
	"gomatch/internal/testkit"
	"gomatch/ports"
	"gomatch/ui"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

// initDatabase connects to PostgreSQL and brings the schema up to date
func initDatabase(appConfig *config.Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", appConfig.Database.URL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping database")
	}

	migrator := migration.NewRunner()
	if err := migrator.Run(context.Background(), db); err != nil {
		return nil, errors.Wrap(err, "database migration failed")
	}

	return db, nil
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := internal.DefaultLogger

	var repo ports.RunRepositoryPort
	if appConfig.Database.URL != "" {
		db, err := initDatabase(appConfig)
		if err != nil {
			log.Fatal("Failed to initialize database: ", err)
		}
		defer db.Close()
		repo = postgres.NewRunRepository(db)
	} else {
		logger.Warn("DATABASE_URL not set, runs are kept in memory only")
		repo = testkit.NewInMemoryRunRepository()
	}

	service := app.NewMatchService(app.MatchConfig{
		Epsilon:    appConfig.Matching.Epsilon,
		MinPairs:   appConfig.Matching.MinPairs,
		ExactLimit: appConfig.Matching.ExactLimit,
		Workers:    appConfig.Matching.Workers,
		RiskSet:    appConfig.Matching.RiskSet,
	}, repo, logger)

	httpApp := ui.NewApp(service, repo, logger)
	if err := httpApp.Start(appConfig.Server.Port); err != nil {
		log.Fatal("Server stopped: ", err)
	}
}
