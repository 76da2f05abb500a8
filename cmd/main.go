package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"tradeledger/src/database"
	"tradeledger/src/executor"
	"tradeledger/src/executors"
	"tradeledger/src/replay"
	"tradeledger/src/server"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "tradeledger"
	app.Usage = "The tradeledger command line interface"

	app.Commands = []cli.Command{
		serverCMD,
		loopCMD,
		rebuildCMD,
		analyzeCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	serverCMD = cli.Command{
		Name:        "server",
		Usage:       "run the ledger API server",
		Action:      serverAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Serve account, position, trade and history queries plus trade intents`,
	}
	loopCMD = cli.Command{
		Name:        "loop",
		Usage:       "run the mark-price and history cadence loop",
		Action:      loopAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Periodically fetch prices, mark open positions and record equity history`,
	}
	rebuildCMD = cli.Command{
		Name:      "rebuild",
		Usage:     "rebuild account state from the trade log",
		Action:    rebuildAction,
		ArgsUsage: "",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "owner", Usage: "account owner to rebuild; all accounts when empty"},
		},
		Description: `Reset derived state and deterministically re-apply the completed trade log`,
	}
	analyzeCMD = cli.Command{
		Name:      "analyze",
		Usage:     "run the read-only trade log diagnostic",
		Action:    analyzeAction,
		ArgsUsage: "",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "owner", Usage: "account owner to analyze", Required: true},
		},
		Description: `Walk the trade log without persisting anything and print per-trade flows`,
	}
)

func initDB() error {
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Error("Failed to connect to database")
		return err
	}
	return nil
}

func serverAction(_ *cli.Context) error {
	logrus.Info("Starting ledger server")

	if err := initDB(); err != nil {
		return err
	}

	server.StartServer(server.GetConfig().Port)
	return nil
}

func loopAction(_ *cli.Context) error {
	logrus.Info("Starting cadence loop")

	if err := initDB(); err != nil {
		return err
	}

	return executors.StartLoop(context.Background(), database.MainDB)
}

func rebuildAction(c *cli.Context) error {
	if err := initDB(); err != nil {
		return err
	}

	svc := replay.NewService(database.MainDB, executor.NewAccountLocks())

	owner := c.String("owner")
	if owner == "" {
		results, err := svc.RebuildAll(context.Background())
		if err != nil {
			return err
		}
		return printJSON(results)
	}

	result, err := svc.Rebuild(context.Background(), owner)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func analyzeAction(c *cli.Context) error {
	if err := initDB(); err != nil {
		return err
	}

	svc := replay.NewService(database.MainDB, executor.NewAccountLocks())

	report, err := svc.Analyze(context.Background(), c.String("owner"))
	if err != nil {
		return err
	}
	return printJSON(report)
}

func printJSON(payload interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}
