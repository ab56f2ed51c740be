// Command baseload fills the database with a long charge history window,
// typically once after installation.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/RobNhz/zaptec-invoice-app/config"
	"github.com/RobNhz/zaptec-invoice-app/database"
	"github.com/RobNhz/zaptec-invoice-app/logging"
	"github.com/RobNhz/zaptec-invoice-app/services"
	"github.com/RobNhz/zaptec-invoice-app/services/ocpp"
	"github.com/RobNhz/zaptec-invoice-app/services/zaptec"
)

const defaultBaseloadDays = 180

var errAborted = errors.New("aborted by user")

type options struct {
	username   string
	days       int
	costPerKWh float64
	assumeYes  bool
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	var opts options
	flag.StringVar(&opts.username, "username", cfg.ZaptecUsername, "Zaptec username")
	flag.IntVar(&opts.days, "history-days", defaultBaseloadDays, "days of history to fetch (1-365)")
	flag.Float64Var(&opts.costPerKWh, "cost-per-kwh", cfg.Pricing.CostPerKWh, "price stored on new records")
	flag.BoolVar(&opts.assumeYes, "yes", false, "skip the confirmation prompt")
	flag.Parse()

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}

	err = run(cfg, opts, logger)
	logger.Sync()
	if errors.Is(err, errAborted) {
		fmt.Println("Aborted by user.")
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "baseload failed: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, opts options, logger *zap.Logger) error {
	if opts.days < services.MinHistoryDays || opts.days > services.MaxHistoryDays {
		return fmt.Errorf("history-days must be between %d and %d, got %d",
			services.MinHistoryDays, services.MaxHistoryDays, opts.days)
	}

	password, err := readPassword()
	if err != nil {
		return err
	}
	if err := services.ValidateCredentials(opts.username, password); err != nil {
		return fmt.Errorf("set -username and ZAPTEC_PASSWORD: %w", err)
	}

	cfg.Pricing.CostPerKWh = opts.costPerKWh
	if err := cfg.Validate(); err != nil {
		return err
	}

	fmt.Println(strings.Repeat("=", 70))
	fmt.Println("ZAPTEC BASELOAD")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Database:     %s\n", cfg.DatabasePath)
	fmt.Printf("Username:     %s\n", opts.username)
	fmt.Printf("History days: %d\n", opts.days)
	fmt.Printf("Cost per kWh: %.2f %s\n", opts.costPerKWh, cfg.Pricing.Currency)
	fmt.Println(strings.Repeat("=", 70))

	if !opts.assumeYes && !confirm(os.Stdin) {
		return errAborted
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := database.RunMigrations(cfg.DatabasePath); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	db, err := database.InitDB(cfg.DatabasePath, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	httpClient := &http.Client{Timeout: 30 * time.Second}
	api := zaptec.NewAPIClient(httpClient, cfg.ZaptecBaseURL)
	deps := services.SyncDeps{
		Store:  database.NewStore(db),
		API:    api,
		Logger: logger,
	}
	if cfg.OCPPAPIURL != "" {
		deps.OCPP = ocpp.NewClient(httpClient, cfg.OCPPAPIURL, cfg.OCPPAPIToken)
	}

	result, err := services.NewSyncService(cfg, deps).Run(ctx, services.SyncRequest{
		Username:    opts.username,
		Password:    password,
		HistoryDays: opts.days,
	})
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Printf("Window:             %s to %s\n", result.WindowStart, result.WindowEnd)
	fmt.Printf("Chargers:           %d\n", result.ChargersSeen)
	fmt.Printf("Owners created:     %d\n", result.OwnersCreated)
	fmt.Printf("Records inserted:   %d\n", result.RecordsInserted)
	fmt.Printf("Duplicates skipped: %d\n", result.DuplicatesSkipped)
	fmt.Printf("Entries skipped:    %d\n", result.EntriesSkipped)
	return nil
}

// readPassword takes ZAPTEC_PASSWORD, or prompts without echo when stdin
// is a terminal.
func readPassword() (string, error) {
	if password := os.Getenv("ZAPTEC_PASSWORD"); password != "" {
		return password, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", nil
	}

	fmt.Print("Zaptec password: ")
	password, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(password), nil
}

func confirm(in io.Reader) bool {
	fmt.Print("\nContinue? (yes/no): ")
	response, _ := bufio.NewReader(in).ReadString('\n')
	return strings.ToLower(strings.TrimSpace(response)) == "yes"
}
