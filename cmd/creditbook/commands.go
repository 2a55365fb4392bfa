package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/MarkoPoloResearchLab/creditbook/internal/notify"
	"github.com/MarkoPoloResearchLab/creditbook/internal/oplog"
	"github.com/MarkoPoloResearchLab/creditbook/internal/shopapi"
	"github.com/MarkoPoloResearchLab/creditbook/pkg/ledger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	flagContact     = "contact"
	flagCreditLimit = "credit-limit"
	flagMemo        = "memo"
	flagConfirm     = "confirm"
	flagHistory     = "history"
	amountPlaces    = 2
)

// ledgerSession bundles an opened service with the resources it holds.
type ledgerSession struct {
	service *ledger.Service
	logger  *zap.Logger
	close   func() error
}

func openLedger(ctx context.Context, cfg *runtimeConfig, logger *zap.Logger, operationLogger ledger.OperationLogger) (*ledgerSession, error) {
	store, cleanup, err := openStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database open: %w", err)
	}
	service, err := ledger.NewService(store, time.Now,
		ledger.WithOperationLogger(operationLogger),
		ledger.WithDefaultCreditLimit(cfg.DefaultCreditLimit),
	)
	if err != nil {
		_ = cleanup()
		return nil, fmt.Errorf("ledger service init: %w", err)
	}
	if err := service.Load(ctx); err != nil {
		_ = cleanup()
		return nil, fmt.Errorf("ledger load: %w", err)
	}
	return &ledgerSession{service: service, logger: logger, close: cleanup}, nil
}

// withLedger runs fn against a loaded ledger and releases it afterwards.
func withLedger(cmd *cobra.Command, cfg *runtimeConfig, fn func(ctx context.Context, session *ledgerSession) error) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	session, err := openLedger(ctx, cfg, logger, oplog.NewZap(logger))
	if err != nil {
		return err
	}
	defer func() { _ = session.close() }()
	return fn(ctx, session)
}

func newServeCommand(cfg *runtimeConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the shop HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	session, err := openLedger(ctx, cfg, logger, oplog.Fanout{oplog.NewZap(logger), oplog.NewMetrics(registry)})
	if err != nil {
		return err
	}
	defer func() { _ = session.close() }()

	server, err := shopapi.NewServer(shopapi.Config{
		ListenAddr:        cfg.ListenAddr,
		AllowedOrigins:    shopapi.ParseAllowedOrigins(cfg.AllowedOrigins),
		PIN:               cfg.PIN,
		SessionSigningKey: cfg.SessionSigningKey,
		SessionTTL:        cfg.SessionTTL,
		SecureCookies:     cfg.SecureCookies,
		ShopName:          cfg.ShopName,
		CountryCode:       cfg.CountryCode,
		Location:          cfg.Location,
	}, session.service, logger, registry)
	if err != nil {
		return fmt.Errorf("shop api init: %w", err)
	}
	logger.Info("ledger loaded",
		zap.Int("customers", len(session.service.Accounts())),
		zap.String("default_credit_limit", session.service.DefaultCreditLimit().String()),
	)
	return server.Run(ctx)
}

func newSummaryCommand(cfg *runtimeConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Print total outstanding and today's collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd, cfg, func(ctx context.Context, session *ledgerSession) error {
				today := time.Now().In(cfg.Location)
				printDashboard(cmd.OutOrStdout(), today, session.service.Dashboard(today))
				return nil
			})
		},
	}
}

func newCustomersCommand(cfg *runtimeConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "customers",
		Short: "Manage customer accounts",
	}

	list := &cobra.Command{
		Use:   "list [query]",
		Short: "List customers, optionally filtered by name or number",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			return withLedger(cmd, cfg, func(ctx context.Context, session *ledgerSession) error {
				printAccounts(cmd.OutOrStdout(), session.service.Find(query), session.service.DefaultCreditLimit())
				return nil
			})
		},
	}

	add := &cobra.Command{
		Use:   "add NAME",
		Short: "Open a customer account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			contact, _ := cmd.Flags().GetString(flagContact)
			limit, _ := cmd.Flags().GetString(flagCreditLimit)
			return withLedger(cmd, cfg, func(ctx context.Context, session *ledgerSession) error {
				account, err := session.service.CreateAccount(ctx, args[0], contact, limit)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created customer #%s %s (%s)\n", account.SequenceNumber(), account.Name(), account.ID())
				return nil
			})
		},
	}
	add.Flags().String(flagContact, "", "Customer phone number")
	add.Flags().String(flagCreditLimit, "", "Explicit credit limit; blank uses the default")

	show := &cobra.Command{
		Use:   "show CUSTOMER",
		Short: "Show a customer with their transaction history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd, cfg, func(ctx context.Context, session *ledgerSession) error {
				account, err := resolveAccount(session.service, args[0])
				if err != nil {
					return err
				}
				printAccount(cmd.OutOrStdout(), account, session.service.DefaultCreditLimit())
				return nil
			})
		},
	}

	remove := &cobra.Command{
		Use:   "delete CUSTOMER",
		Short: "Delete a customer and their history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd, cfg, func(ctx context.Context, session *ledgerSession) error {
				account, err := resolveAccount(session.service, args[0])
				if err != nil {
					return err
				}
				if err := session.service.DeleteAccount(ctx, account.ID().String()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted customer #%s %s\n", account.SequenceNumber(), account.Name())
				return nil
			})
		},
	}

	cmd.AddCommand(list, add, show, remove)
	return cmd
}

func newRecordCommand(cfg *runtimeConfig, use string, direction ledger.Direction, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " CUSTOMER AMOUNT",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			memo, _ := cmd.Flags().GetString(flagMemo)
			confirm, _ := cmd.Flags().GetBool(flagConfirm)
			return withLedger(cmd, cfg, func(ctx context.Context, session *ledgerSession) error {
				account, err := resolveAccount(session.service, args[0])
				if err != nil {
					return err
				}
				receipt, err := session.service.RecordTransaction(ctx, account.ID().String(), direction, args[1], memo, ledger.Confirmation(confirm))
				var limitError *ledger.LimitExceededError
				if errors.As(err, &limitError) {
					return fmt.Errorf("balance would rise from %s to %s, above the limit of %s; rerun with --%s to record it anyway",
						limitError.CurrentBalance.StringFixed(amountPlaces),
						limitError.ProjectedBalance.StringFixed(amountPlaces),
						limitError.Limit.StringFixed(amountPlaces),
						flagConfirm,
					)
				}
				if err != nil {
					return err
				}
				printReceipt(cmd.OutOrStdout(), notify.NewComposer(cfg.ShopName, cfg.CountryCode), receipt)
				return nil
			})
		},
	}
	cmd.Flags().String(flagMemo, "", "Note stored with the transaction")
	if direction == ledger.DirectionCredit {
		cmd.Flags().Bool(flagConfirm, false, "Record the credit even when it passes the customer's limit")
	}
	return cmd
}

func newReverseCommand(cfg *runtimeConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "reverse CUSTOMER TRANSACTION",
		Short: "Remove a recorded transaction and undo its effect on the balance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd, cfg, func(ctx context.Context, session *ledgerSession) error {
				account, err := resolveAccount(session.service, args[0])
				if err != nil {
					return err
				}
				receipt, err := session.service.ReverseTransaction(ctx, account.ID().String(), args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reversed %s of Rs. %s. Balance: Rs. %s\n",
					receipt.Transaction.Direction(),
					receipt.Transaction.Amount().StringFixed(amountPlaces),
					receipt.Account.Balance().StringFixed(amountPlaces),
				)
				return nil
			})
		},
	}
}

// resolveAccount accepts either a customer id or a customer number.
func resolveAccount(service *ledger.Service, reference string) (ledger.Account, error) {
	account, err := service.Account(reference)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, ledger.ErrUnknownCustomer) {
		return ledger.Account{}, err
	}
	for _, candidate := range service.Accounts() {
		if candidate.SequenceNumber().String() == reference {
			return candidate, nil
		}
	}
	return ledger.Account{}, err
}

func printDashboard(out io.Writer, today time.Time, dashboard ledger.Dashboard) {
	fmt.Fprintf(out, "Date:               %s\n", today.Format(time.DateOnly))
	fmt.Fprintf(out, "Customers:          %d\n", dashboard.CustomerCount)
	fmt.Fprintf(out, "Over limit:         %d\n", dashboard.OverLimitCount)
	fmt.Fprintf(out, "Total outstanding:  Rs. %s\n", dashboard.TotalOutstanding.StringFixed(amountPlaces))
	fmt.Fprintf(out, "Today's collection: Rs. %s\n", dashboard.TodaysCollections.StringFixed(amountPlaces))
}

func printAccounts(out io.Writer, accounts iter.Seq[ledger.Account], defaultLimit ledger.Money) {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "NO\tNAME\tCONTACT\tBALANCE\tLIMIT\tID")
	for account := range accounts {
		marker := ""
		if account.IsOverLimit(defaultLimit) {
			marker = " !"
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s%s\t%s\t%s\n",
			account.SequenceNumber(),
			account.Name(),
			account.Contact(),
			account.Balance().StringFixed(amountPlaces),
			marker,
			account.EffectiveCreditLimit(defaultLimit).StringFixed(amountPlaces),
			account.ID(),
		)
	}
	_ = writer.Flush()
}

func printAccount(out io.Writer, account ledger.Account, defaultLimit ledger.Money) {
	fmt.Fprintf(out, "#%s %s\n", account.SequenceNumber(), account.Name())
	if account.Contact() != "" {
		fmt.Fprintf(out, "Contact: %s\n", account.Contact())
	}
	fmt.Fprintf(out, "Balance: Rs. %s (limit Rs. %s)\n",
		account.Balance().StringFixed(amountPlaces),
		account.EffectiveCreditLimit(defaultLimit).StringFixed(amountPlaces),
	)
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "WHEN\tDIRECTION\tAMOUNT\tMEMO\tID")
	for _, transaction := range account.Transactions() {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
			transaction.CreatedAt().Local().Format(time.DateTime),
			transaction.Direction(),
			transaction.Amount().StringFixed(amountPlaces),
			transaction.Memo(),
			transaction.ID(),
		)
	}
	_ = writer.Flush()
}

func printReceipt(out io.Writer, composer notify.Composer, receipt ledger.Receipt) {
	fmt.Fprintf(out, "Recorded %s of Rs. %s for #%s %s (transaction %s)\n",
		receipt.Transaction.Direction(),
		receipt.Transaction.Amount().StringFixed(amountPlaces),
		receipt.Account.SequenceNumber(),
		receipt.Account.Name(),
		receipt.Transaction.ID(),
	)
	fmt.Fprintln(out, composer.Message(receipt.Notification))
	if link, ok := composer.Link(receipt.Notification); ok {
		fmt.Fprintf(out, "WhatsApp: %s\n", link)
	}
}
