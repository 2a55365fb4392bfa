package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/MarkoPoloResearchLab/creditbook/internal/notify"
	"github.com/MarkoPoloResearchLab/creditbook/pkg/ledger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	flagDatabaseURL        = "database-url"
	flagListenAddr         = "listen-addr"
	flagDefaultCreditLimit = "default-credit-limit"
	flagPIN                = "pin"
	flagSessionSigningKey  = "session-signing-key"
	flagSessionTTL         = "session-ttl"
	flagSecureCookies      = "secure-cookies"
	flagAllowedOrigins     = "allowed-origins"
	flagTimeZone           = "time-zone"
	flagShopName           = "shop-name"
	flagCountryCode        = "country-code"

	envPrefix                 = "CREDITBOOK"
	defaultDatabaseURL        = "sqlite:///tmp/creditbook.db"
	defaultListenAddr         = ":8080"
	defaultAllowedOriginsFlag = "http://localhost:8081"
	defaultSessionTTL         = 12 * time.Hour
)

type runtimeConfig struct {
	DatabaseURL        string
	ListenAddr         string
	DefaultCreditLimit ledger.Money
	PIN                string
	SessionSigningKey  string
	SessionTTL         time.Duration
	SecureCookies      bool
	AllowedOrigins     string
	Location           *time.Location
	ShopName           string
	CountryCode        string
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "creditbook: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "creditbook",
		Short:         "Customer credit ledger for a small shop",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, viper.New(), cfg)
		},
	}

	flags := cmd.PersistentFlags()
	flags.String(flagDatabaseURL, defaultDatabaseURL, "Ledger storage: sqlite path or URL, postgres://, pgx://, or file:// JSON snapshot")
	flags.String(flagDefaultCreditLimit, strconv.FormatInt(ledger.DefaultCreditLimitUnits, 10), "Ceiling applied to customers without an explicit credit limit")
	flags.String(flagTimeZone, "", "IANA time zone that decides what today means (defaults to local time)")
	flags.String(flagShopName, notify.DefaultShopName, "Shop name heading customer messages")
	flags.String(flagCountryCode, notify.DefaultCountryCode, "Country code replacing the leading 0 of local phone numbers")
	flags.String(flagListenAddr, defaultListenAddr, "HTTP listen address")
	flags.String(flagPIN, "", "Unlock PIN for the shop API")
	flags.String(flagSessionSigningKey, "", "HS256 key used to sign session cookies")
	flags.Duration(flagSessionTTL, defaultSessionTTL, "Lifetime of an unlocked session")
	flags.Bool(flagSecureCookies, false, "Mark session cookies Secure")
	flags.String(flagAllowedOrigins, defaultAllowedOriginsFlag, "Comma-separated CORS origins")

	cmd.AddCommand(
		newServeCommand(cfg),
		newSummaryCommand(cfg),
		newCustomersCommand(cfg),
		newRecordCommand(cfg, "credit", ledger.DirectionCredit, "Record goods taken on credit"),
		newRecordCommand(cfg, "pay", ledger.DirectionPayment, "Record a payment received"),
		newReverseCommand(cfg),
	)
	return cmd
}

func loadConfig(cmd *cobra.Command, settings *viper.Viper, cfg *runtimeConfig) error {
	settings.SetEnvPrefix(envPrefix)
	settings.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	settings.AutomaticEnv()

	for _, name := range []string{
		flagDatabaseURL,
		flagListenAddr,
		flagDefaultCreditLimit,
		flagPIN,
		flagSessionSigningKey,
		flagSessionTTL,
		flagSecureCookies,
		flagAllowedOrigins,
		flagTimeZone,
		flagShopName,
		flagCountryCode,
	} {
		if err := settings.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
			return err
		}
	}
	// Plain DATABASE_URL is accepted as well.
	if err := settings.BindEnv(flagDatabaseURL, envPrefix+"_DATABASE_URL", "DATABASE_URL"); err != nil {
		return err
	}

	cfg.DatabaseURL = strings.TrimSpace(settings.GetString(flagDatabaseURL))
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	limit, err := ledger.ParseAmount(settings.GetString(flagDefaultCreditLimit))
	if err != nil {
		return fmt.Errorf("default credit limit: %w", err)
	}
	cfg.DefaultCreditLimit = limit
	cfg.ListenAddr = settings.GetString(flagListenAddr)
	cfg.PIN = settings.GetString(flagPIN)
	cfg.SessionSigningKey = settings.GetString(flagSessionSigningKey)
	cfg.SessionTTL = settings.GetDuration(flagSessionTTL)
	cfg.SecureCookies = settings.GetBool(flagSecureCookies)
	cfg.AllowedOrigins = settings.GetString(flagAllowedOrigins)
	cfg.ShopName = settings.GetString(flagShopName)
	cfg.CountryCode = settings.GetString(flagCountryCode)

	cfg.Location = time.Local
	if zone := strings.TrimSpace(settings.GetString(flagTimeZone)); zone != "" {
		location, err := time.LoadLocation(zone)
		if err != nil {
			return fmt.Errorf("time zone: %w", err)
		}
		cfg.Location = location
	}
	return nil
}
