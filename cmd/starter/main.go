package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"cod-order-service/internal/config"
	"cod-order-service/internal/httpapi"
	"cod-order-service/internal/logging"
	"cod-order-service/internal/modal"
	"cod-order-service/internal/proxysig"
	"cod-order-service/internal/store"
	"cod-order-service/internal/workflows"
)

var (
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "cod-starter",
	Short: "Developer and operator commands for the COD order service",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		logger, err = logging.New(cfg.LogLevel)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	SilenceUsage: true,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "path to the YAML config file")
	rootCmd.AddCommand(signCmd(), reviewCmd(), importLocationsCmd(), saveTokenCmd(), sessionTokenCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// signCmd prints an App Proxy query string signed with the app secret, for
// calling the proxy routes by hand.
func signCmd() *cobra.Command {
	var shop string
	var params []string
	cmd := &cobra.Command{
		Use:   "sign [path]",
		Short: "Sign an App Proxy request",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Shopify.APISecret == "" {
				return errors.New("shopify.api_secret is not set")
			}
			q := url.Values{
				"shop":        {shop},
				"path_prefix": {"/apps/cod"},
				"timestamp":   {strconv.FormatInt(time.Now().Unix(), 10)},
			}
			for _, p := range params {
				k, v, ok := strings.Cut(p, "=")
				if !ok {
					return fmt.Errorf("param %q is not key=value", p)
				}
				q.Add(k, v)
			}
			q.Set(proxysig.SignatureParam, proxysig.Sign(q, cfg.Shopify.APISecret))

			path := cfg.Server.ProxyPrefix + "/submit"
			if len(args) == 1 {
				path = args[0]
			}
			fmt.Fprintln(cmd.OutOrStdout(), path+"?"+q.Encode())
			return nil
		},
	}
	cmd.Flags().StringVar(&shop, "shop", "demo.myshopify.com", "shop domain")
	cmd.Flags().StringArrayVar(&params, "param", nil, "extra key=value query parameter (repeatable)")
	return cmd
}

// reviewCmd starts a review workflow for an existing flagged draft.
func reviewCmd() *cobra.Command {
	var rc modal.ReviewCase
	var reasons string
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Start a manual review workflow for a draft order",
		RunE: func(cmd *cobra.Command, args []string) error {
			if rc.Shop == "" || rc.DraftOrderID == "" {
				return errors.New("--shop and --draft are required")
			}
			if reasons != "" {
				rc.Reasons = strings.Split(reasons, ",")
			}
			rc.FlaggedAt = time.Now().UTC()

			hostPort := cfg.Temporal.HostPort
			if hostPort == "" {
				hostPort = client.DefaultHostPort
			}
			c, err := client.Dial(client.Options{
				HostPort:  hostPort,
				Namespace: cfg.Temporal.Namespace,
				Logger:    logging.Temporal(logger.Named("temporal")),
			})
			if err != nil {
				return fmt.Errorf("unable to create Temporal client: %w", err)
			}
			defer c.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			id, err := workflows.NewStarter(c).StartReview(ctx, rc)
			if err != nil {
				return err
			}
			logger.Info("started review workflow", zap.String("workflow_id", id))
			if wait <= 0 {
				return nil
			}

			wctx, wcancel := context.WithTimeout(cmd.Context(), wait)
			defer wcancel()
			var result string
			if err := c.GetWorkflow(wctx, id, "").Get(wctx, &result); err != nil {
				return fmt.Errorf("unable to get workflow result: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), result)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&rc.Shop, "shop", "", "shop domain")
	f.StringVar(&rc.DraftOrderID, "draft", "", "draft order gid")
	f.StringVar(&rc.DraftName, "name", "", "draft order name, e.g. #D12")
	f.StringVar(&rc.CustomerName, "customer", "", "customer name")
	f.StringVar(&rc.Phone, "phone", "", "customer phone")
	f.IntVar(&rc.Score, "score", 0, "risk score")
	f.StringVar(&reasons, "reasons", "", "comma separated risk reasons")
	f.DurationVar(&wait, "wait", 0, "wait this long for the review result")
	return cmd
}

func openStore(ctx context.Context) (*store.Store, error) {
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url (DATABASE_URL) is required")
	}
	db, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	st := store.New(db)
	if err := st.EnsureSchema(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// importLocationsCmd loads wilaya/commune rows from a CSV file with the
// columns wilaya_code, wilaya_name, commune.
func importLocationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import-locations <file.csv>",
		Short: "Import wilayas and communes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			locs, err := readLocations(f)
			if err != nil {
				return err
			}

			st, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()
			n, err := st.ImportLocations(cmd.Context(), locs)
			if err != nil {
				return err
			}
			logger.Info("locations imported", zap.Int("read", len(locs)), zap.Int("inserted", n))
			return nil
		},
	}
}

func readLocations(r io.Reader) ([]modal.Location, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 3
	cr.TrimLeadingSpace = true

	var out []modal.Location
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if line == 1 && strings.EqualFold(rec[0], "wilaya_code") {
			continue
		}
		code := strings.TrimSpace(rec[0])
		n, err := strconv.Atoi(code)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("line %d: bad wilaya code %q", line, rec[0])
		}
		out = append(out, modal.Location{
			WilayaCode: fmt.Sprintf("%02d", n),
			WilayaName: strings.TrimSpace(rec[1]),
			Commune:    strings.TrimSpace(rec[2]),
		})
	}
}

// saveTokenCmd stores an offline Admin API token for a shop.
func saveTokenCmd() *cobra.Command {
	var shop, token, scope string
	cmd := &cobra.Command{
		Use:   "save-token",
		Short: "Store an offline access token for a shop",
		RunE: func(cmd *cobra.Command, args []string) error {
			if shop == "" || token == "" {
				return errors.New("--shop and --token are required")
			}
			st, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.SaveOfflineToken(cmd.Context(), shop, token, scope); err != nil {
				return err
			}
			logger.Info("offline token saved", zap.String("shop", shop))
			return nil
		},
	}
	cmd.Flags().StringVar(&shop, "shop", "", "shop domain")
	cmd.Flags().StringVar(&token, "token", "", "offline access token")
	cmd.Flags().StringVar(&scope, "scope", "write_draft_orders", "granted scopes")
	return cmd
}

// sessionTokenCmd mints an admin session token for local use of /ui and
// /admin/api without the Shopify admin.
func sessionTokenCmd() *cobra.Command {
	var shop string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "session-token",
		Short: "Mint an admin session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := httpapi.NewSessionVerifier(cfg.Shopify.APISecret, cfg.Shopify.APIKey).Mint(shop, "cli", ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&shop, "shop", "demo.myshopify.com", "shop domain")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
