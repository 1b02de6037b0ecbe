package main

import (
	"fmt"
	"os"

	"portfoliosim/cmd/backtest"
	"portfoliosim/cmd/ohlcv"
	"portfoliosim/src/database"
	"portfoliosim/src/server"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "Portfoliosim CMD"
	app.Usage = "The portfoliosim command line interface"

	app.Commands = []cli.Command{
		backtestCMD,
		ohlcvCMD,
		serveCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	backtestCMD = cli.Command{
		Name:        "backtest",
		Usage:       "run a backtest",
		Action:      backtestAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Replay stored bars through the portfolio engine and persist the run`,
	}
	ohlcvCMD = cli.Command{
		Name:        "ohlcv",
		Usage:       "ingest daily OHLCV bars",
		Action:      ohlcvAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Fetch daily candles from the exchange and upsert them into the bars table`,
	}
	serveCMD = cli.Command{
		Name:        "serve",
		Usage:       "run the results API",
		Action:      serveAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Serve persisted runs, trades and equity curves over HTTP`,
	}
)

func backtestAction(_ *cli.Context) error {

	logrus.Info("Starting backtest CMD")
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	bt := &backtest.Backtest{
		Log: logrus.WithField("cmd", "backtest"),
		DB:  database.MainDB,
	}

	err := bt.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting backtest cmd")
		return err
	}

	return nil
}

func ohlcvAction(_ *cli.Context) error {

	logrus.Info("Starting OHLCV CMD")
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	ingest := &ohlcv.OHLCVDaily{
		Log: logrus.WithField("cmd", "ohlcv"),
		DB:  database.MainDB,
	}

	err := ingest.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting OHLCV cmd")
		return err
	}

	return nil
}

func serveAction(_ *cli.Context) error {

	logrus.Info("Starting results API CMD")
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	server.StartServer(server.GetConfig().Port)

	return nil
}
