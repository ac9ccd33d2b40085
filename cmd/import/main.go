package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/ikkim/localservices-backend/config"
	"github.com/ikkim/localservices-backend/internal/app/model"
	"github.com/ikkim/localservices-backend/internal/app/repository"
	"github.com/ikkim/localservices-backend/internal/app/service"
	"github.com/ikkim/localservices-backend/internal/db"
	"github.com/ikkim/localservices-backend/pkg/logger"
	"github.com/ikkim/localservices-backend/pkg/mailer"
	"github.com/ikkim/localservices-backend/pkg/util"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

// AccountRow is one account read from the sheet
type AccountRow struct {
	Row   int
	Email string
	Name  string
}

// ImportSummary counts what happened to each row
type ImportSummary struct {
	Created  int
	Existing int
	Invalid  int
	Started  int
}

func main() {
	sendCodes := flag.Bool("send-codes", false, "issue a registration code to every created account")
	yes := flag.Bool("yes", false, "skip the confirmation prompt")
	flag.Parse()

	if flag.NArg() < 1 {
		log.Fatal("Usage: go run ./cmd/import [-send-codes] [-yes] <xlsx_file_path>")
	}
	filePath := flag.Arg(0)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.Initialize(logger.Config{Level: "info", Format: "console", EnableColor: true})

	if err := db.Initialize(&cfg.Database); err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	fmt.Printf("Reading XLSX file: %s\n", filePath)
	rows, err := readAccountsFromXLSX(filePath)
	if err != nil {
		log.Fatal("Failed to read XLSX:", err)
	}
	fmt.Printf("Total accounts to import: %d\n", len(rows))

	if !*yes {
		fmt.Print("Do you want to proceed with the import? (yes/no): ")
		var confirm string
		fmt.Scanln(&confirm)
		if confirm != "yes" && confirm != "y" {
			fmt.Println("Import cancelled.")
			return
		}
	}

	userRepo := repository.NewUserRepository(db.GetDB())

	var starter registrationStarter
	if *sendCodes {
		starter, err = newRegistrationStarter(cfg, userRepo)
		if err != nil {
			log.Fatal("Failed to set up verification:", err)
		}
	}

	ctx := context.Background()
	summary, err := importAccounts(ctx, userRepo, util.CryptoRandom{}, starter, rows)
	if err != nil {
		log.Fatal("Import aborted:", err)
	}

	fmt.Println("Import completed.")
	fmt.Printf("Created: %d, already registered: %d, invalid: %d, codes sent: %d\n",
		summary.Created, summary.Existing, summary.Invalid, summary.Started)
}

// readAccountsFromXLSX reads the first sheet. The header row must name an
// "email" column; a "name" column is optional.
func readAccountsFromXLSX(filePath string) ([]AccountRow, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open XLSX file: %w", err)
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, fmt.Errorf("no sheets found in XLSX file")
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no data found in XLSX file")
	}

	emailCol, nameCol := -1, -1
	for i, header := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(header)) {
		case "email", "e-mail":
			emailCol = i
		case "name":
			nameCol = i
		}
	}
	if emailCol < 0 {
		return nil, fmt.Errorf("header row has no email column")
	}

	var accounts []AccountRow
	for i, row := range rows[1:] {
		account := AccountRow{Row: i + 2}
		if emailCol < len(row) {
			account.Email = strings.TrimSpace(row[emailCol])
		}
		if nameCol >= 0 && nameCol < len(row) {
			account.Name = strings.TrimSpace(row[nameCol])
		}
		if account.Email == "" && account.Name == "" {
			continue
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

// registrationStarter begins email verification for a created account
type registrationStarter func(ctx context.Context, user *model.User) error

func newRegistrationStarter(cfg *config.Config, userRepo repository.UserRepository) (registrationStarter, error) {
	guard, err := util.NewCSRFGuard(cfg.CSRF.Secret, cfg.CSRF.TokenTTL, nil)
	if err != nil {
		return nil, err
	}

	v := cfg.Verification
	verification := service.NewVerificationService(service.VerificationDeps{
		OTP:               service.NewOTPService(repository.NewOTPRepository(db.GetDB()), nil, nil, nil, service.LogObserver{}, service.NewOTPPolicy(v)),
		Resets:            service.NewResetTokenService(repository.NewPasswordResetRepository(db.GetDB()), nil, nil, service.LogObserver{}, v.ResetTokenTTL, v.StoreTimeout),
		Users:             userRepo,
		Mail:              service.NewEmailDispatch(mailer.New(cfg.SMTP)),
		CSRF:              guard,
		Observer:          service.LogObserver{},
		MinPasswordLength: v.MinPasswordLength,
		StoreTimeout:      v.StoreTimeout,
	})

	return func(ctx context.Context, user *model.User) error {
		token, _, err := guard.Generate("import")
		if err != nil {
			return err
		}
		scope := service.RequestScope{CSRFToken: token, RequestID: "import"}
		_, err = verification.StartRegistration(ctx, scope, user.Email, user.Name, user.ID)
		return err
	}, nil
}

// importAccounts creates one unverified account per valid row. Accounts get
// a random password nobody knows; owners set their own through password
// reset after verifying. Store failures abort the run.
func importAccounts(
	ctx context.Context,
	userRepo repository.UserRepository,
	random util.RandomSource,
	start registrationStarter,
	rows []AccountRow,
) (ImportSummary, error) {
	var summary ImportSummary

	for _, row := range rows {
		email, err := util.ParseEmail(row.Email)
		if err != nil {
			fmt.Fprintf(os.Stderr, "row %d: invalid email %q\n", row.Row, row.Email)
			summary.Invalid++
			continue
		}
		name := row.Name
		if name == "" {
			name = strings.SplitN(email, "@", 2)[0]
		}

		secret, err := random.Token(32)
		if err != nil {
			return summary, fmt.Errorf("failed to generate password: %w", err)
		}
		hash, err := util.HashPassword(secret)
		if err != nil {
			return summary, fmt.Errorf("failed to hash password: %w", err)
		}

		user := &model.User{
			Email:        email,
			PasswordHash: hash,
			Name:         name,
		}
		createCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = userRepo.Create(createCtx, user)
		cancel()
		if err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				summary.Existing++
				continue
			}
			return summary, fmt.Errorf("row %d: %w", row.Row, err)
		}
		summary.Created++

		if start == nil {
			continue
		}
		if err := start(ctx, user); err != nil {
			logger.Warn("Failed to start registration verification", map[string]interface{}{
				"row":     row.Row,
				"user_id": user.ID,
				"error":   err.Error(),
			})
			continue
		}
		summary.Started++
	}
	return summary, nil
}
