package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vpriesta/mds-form/internal/auth"
	"github.com/vpriesta/mds-form/internal/config"
	"github.com/vpriesta/mds-form/internal/domain"
	"github.com/vpriesta/mds-form/internal/events"
	"github.com/vpriesta/mds-form/internal/logging"
	"github.com/vpriesta/mds-form/internal/store"
	"github.com/vpriesta/mds-form/internal/store/backends"
	"github.com/vpriesta/mds-form/internal/tui"
)

func main() {
	cfg := config.Load()
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.ReviewerUsername == "" {
		return errors.New("REVIEWER_USERNAME is required")
	}

	creds, err := auth.LoadCredentials(cfg.CredentialsFile)
	if err != nil {
		return err
	}
	role, err := creds.Authenticate(cfg.ReviewerUsername, cfg.ReviewerPassword)
	if err != nil {
		return err
	}
	caller := domain.Caller{Username: cfg.ReviewerUsername, Role: role}
	if !caller.IsVerifier() {
		return fmt.Errorf("%s is not a verifier", cfg.ReviewerUsername)
	}

	// The terminal owns stdout, so logs go nowhere unless production mode asks for JSON on stderr.
	log := logging.Nop()
	if cfg.LogMode == "production" || cfg.LogMode == "prod" {
		if log, err = logging.New(cfg.LogMode); err != nil {
			return err
		}
		defer log.Sync()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, closeBackend, err := backends.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeBackend()

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.EventsEnabled() {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.EventsTopic)
		defer kp.Close()
		publisher = kp
	}

	service := domain.NewService(
		store.New(backend, store.WithLogger(log), store.WithDefaultLimits(cfg.OwnerListLimit, cfg.ReviewListLimit)),
		domain.WithPublisher(publisher),
		domain.WithLogger(log),
	)

	p := tea.NewProgram(tui.New(ctx, service, caller, cfg.ReviewListLimit), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running reviewer: %w", err)
	}
	return nil
}
