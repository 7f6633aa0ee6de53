package database

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/PAAPII10/slack-clone-sub001/internal/config"
	"github.com/PAAPII10/slack-clone-sub001/internal/models"
)

func Connect(cfg *config.Config) *gorm.DB {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	log.Info().Msg("database connected")
	return db
}

func AutoMigrate(db *gorm.DB) {
	err := db.AutoMigrate(
		&models.User{},
		&models.Workspace{},
		&models.Member{},
		&models.Channel{},
		&models.ChannelMember{},
		&models.Conversation{},
		&models.ConversationMember{},
		&models.HuddleSession{},
		&models.HuddleParticipant{},
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to auto-migrate")
	}
	log.Info().Msg("database migrated")
}
