// useradd creates accounts and assigns RFID tags. Accounts are managed
// out-of-band by an operator: the HTTP service only ever reads the users
// table.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/daedalus410/RFID-attendance-system/internal/attendance"
	"github.com/daedalus410/RFID-attendance-system/internal/auth"
	"github.com/daedalus410/RFID-attendance-system/internal/config"
	"github.com/daedalus410/RFID-attendance-system/internal/logger"
	"github.com/daedalus410/RFID-attendance-system/internal/model"
	"github.com/daedalus410/RFID-attendance-system/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		name     string
		password string
		rfidUID  string
		assign   bool
	)

	flags := pflag.NewFlagSet("useradd", pflag.ContinueOnError)
	flags.StringVar(&name, "name", "", "account name (required)")
	flags.StringVar(&password, "password", "", "login password (required unless --assign)")
	flags.StringVar(&rfidUID, "rfid", "", "RFID tag UID to assign")
	flags.BoolVar(&assign, "assign", false, "assign --rfid to an existing account instead of creating one")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	switch {
	case name == "":
		return fmt.Errorf("--name is required\n\n%s", flags.FlagUsages())
	case assign && rfidUID == "":
		return errors.New("--assign needs --rfid")
	case !assign && password == "":
		return errors.New("--password is required when creating an account")
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logg := logger.New(os.Stderr, cfg.IsProduction())

	st, err := store.Open(cfg, logg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if cfg.AutoMigrate {
		if err := st.Migrate(); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	repo := attendance.NewRepository(st.Pool)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if assign {
		user, err := repo.UserByName(ctx, name)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return fmt.Errorf("no account named %q", name)
			}
			return err
		}
		if err := repo.SetUserRFID(ctx, user.ID, rfidUID); err != nil {
			return fmt.Errorf("assign tag: %w", err)
		}
		fmt.Printf("assigned tag %s to %s (id %d)\n", rfidUID, user.Name, user.ID)
		return nil
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user, err := repo.CreateUser(ctx, name, hash)
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	if rfidUID != "" {
		if err := repo.SetUserRFID(ctx, user.ID, rfidUID); err != nil {
			return fmt.Errorf("account %d created but tag not assigned: %w", user.ID, err)
		}
	}

	fmt.Printf("created %s (id %d)\n", user.Name, user.ID)
	if rfidUID != "" {
		fmt.Printf("assigned tag %s\n", rfidUID)
	}
	return nil
}
