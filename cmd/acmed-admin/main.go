// acmed-admin is the operator tool for the acmed storage engine: it probes
// and updates the schema version, prints reports, and manages housekeeping
// parameters.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/certsecure/acmed/acme"
	acmenosql "github.com/certsecure/acmed/acme/db/nosql"
	"github.com/certsecure/acmed/db"
	"github.com/certsecure/acmed/internal/config"
	"github.com/certsecure/acmed/logging"
)

// Version is set by the build.
var Version = "dev"

func main() {
	app := cli.NewApp()
	app.Name = "acmed-admin"
	app.Version = Version
	app.Usage = "operate the acmed storage engine"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "db-type",
			Usage: "backing store `driver` (badger, badgerv2, bbolt, mysql, postgresql); overrides ACMED_DB_TYPE",
		},
		cli.StringFlag{
			Name:  "db-datasource",
			Usage: "backing store `path` or DSN; overrides ACMED_DB_DATASOURCE",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "db",
			Usage: "schema version operations",
			Subcommands: []cli.Command{
				{
					Name:   "version",
					Usage:  "print the persisted and expected schema versions",
					Action: dbVersionAction,
				},
				{
					Name:   "update",
					Usage:  "reconcile the persisted schema with the running code",
					Action: dbUpdateAction,
				},
			},
		},
		{
			Name:  "report",
			Usage: "print entity reports",
			Subcommands: []cli.Command{
				{
					Name:   "accounts",
					Usage:  "print the account/order/authorization/challenge report",
					Action: reportAccountsAction,
				},
				{
					Name:   "certificates",
					Usage:  "print the certificate report",
					Action: reportCertificatesAction,
				},
			},
		},
		{
			Name:  "hk",
			Usage: "housekeeping parameters",
			Subcommands: []cli.Command{
				{
					Name:      "set",
					Usage:     "set a housekeeping parameter",
					ArgsUsage: "<name> <value>",
					Action:    hkSetAction,
				},
				{
					Name:      "get",
					Usage:     "get a housekeeping parameter",
					ArgsUsage: "<name>",
					Action:    hkGetAction,
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// open builds the storage engine from the environment configuration,
// overlaid with the command line flags.
func open(ctx *cli.Context) (acme.DB, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, err
	}
	if v := ctx.GlobalString("db-type"); v != "" {
		cfg.DB.Type = v
	}
	if v := ctx.GlobalString("db-datasource"); v != "" {
		cfg.DB.DataSource = v
	}

	logger, err := logging.New("acmed-admin", logging.Options{
		Format: cfg.Log.Format,
		Level:  cfg.Log.Level,
	})
	if err != nil {
		return nil, err
	}

	store, err := db.New(&db.Config{
		Type:       cfg.DB.Type,
		DataSource: cfg.DB.DataSource,
		Database:   cfg.DB.Database,
		ValueDir:   cfg.DB.ValueDir,
	})
	if err != nil {
		return nil, err
	}
	return acmenosql.New(store, logger.GetImpl())
}

func dbVersionAction(ctx *cli.Context) error {
	adb, err := open(ctx)
	if err != nil {
		return err
	}
	version, updateRef, err := adb.DBVersionGet(context.Background())
	if err != nil {
		return err
	}
	return printJSON(map[string]string{
		"version":  version,
		"expected": acmenosql.Version,
		"update":   updateRef,
	})
}

func dbUpdateAction(ctx *cli.Context) error {
	adb, err := open(ctx)
	if err != nil {
		return err
	}
	state, err := adb.SchemaReconcile(context.Background())
	if err != nil {
		return err
	}
	return printJSON(map[string]string{"state": state.String()})
}

func reportAccountsAction(ctx *cli.Context) error {
	adb, err := open(ctx)
	if err != nil {
		return err
	}
	fields, rows, err := adb.AccountsReport(context.Background())
	if err != nil {
		return err
	}
	return printReport(fields, rows)
}

func reportCertificatesAction(ctx *cli.Context) error {
	adb, err := open(ctx)
	if err != nil {
		return err
	}
	fields, rows, err := adb.CertificatesReport(context.Background())
	if err != nil {
		return err
	}
	return printReport(fields, rows)
}

func hkSetAction(ctx *cli.Context) error {
	if ctx.NArg() != 2 {
		return cli.ShowCommandHelp(ctx, "set")
	}
	adb, err := open(ctx)
	if err != nil {
		return err
	}
	name, created, err := adb.HousekeepingAdd(context.Background(), ctx.Args().Get(0), ctx.Args().Get(1))
	if err != nil {
		return err
	}
	return printJSON(map[string]interface{}{"name": name, "created": created})
}

func hkGetAction(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.ShowCommandHelp(ctx, "get")
	}
	adb, err := open(ctx)
	if err != nil {
		return err
	}
	value, ok, err := adb.HousekeepingGet(context.Background(), ctx.Args().Get(0))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("housekeeping parameter %s not found", ctx.Args().Get(0))
	}
	fmt.Println(value)
	return nil
}

func printReport(fields []string, rows []acme.Record) error {
	return printJSON(map[string]interface{}{
		"fields": fields,
		"rows":   rows,
	})
}

func printJSON(v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
