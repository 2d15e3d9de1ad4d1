// Command ratectl inspects and records metal rates and reviews the order
// book from a terminal.
//
//	ratectl current
//	ratectl history -limit 20
//	ratectl record -gold 6120.50 -silver 78.25 -notes "morning board"
//	ratectl attention -limit 50
//	ratectl stats
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-jewelry-orders/internal/app"
	"github.com/imrishuroy/go-jewelry-orders/internal/aws"
	"github.com/imrishuroy/go-jewelry-orders/internal/config"
	"github.com/imrishuroy/go-jewelry-orders/internal/logger"
	"github.com/imrishuroy/go-jewelry-orders/internal/orders"
	"github.com/imrishuroy/go-jewelry-orders/internal/rates"
)

const operator = "ratectl"

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	_ = godotenv.Load()
	if err := logger.Init(os.Getenv("APP_ENV") == "development"); err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.L()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := config.Load(log)
	clients, err := aws.NewAWSClients(ctx)
	if err != nil {
		log.Fatal("failed to init aws clients", zap.Error(err))
	}
	a := app.New(ctx, cfg, clients, log)
	defer a.Close()

	if err := run(ctx, a, os.Args[1], os.Args[2:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "ratectl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, a *app.App, cmd string, args []string, out io.Writer) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	limit := fs.Int("limit", 10, "maximum rows")

	switch cmd {
	case "current":
		rec, err := a.Rates.Current(ctx)
		if err != nil {
			return err
		}
		return renderRates(out, []rates.Record{rec})

	case "history":
		if err := fs.Parse(args); err != nil {
			return err
		}
		list, err := a.Rates.History(ctx, *limit)
		if err != nil {
			return err
		}
		return renderRates(out, list)

	case "record":
		gold := fs.Float64("gold", -1, "gold rate per gram")
		silver := fs.Float64("silver", -1, "silver rate per gram")
		notes := fs.String("notes", "", "note stored with the record")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *gold < 0 || *silver < 0 {
			return fmt.Errorf("record needs -gold and -silver")
		}
		rec, err := a.Rates.Record(ctx, rates.NewRecord{Gold: *gold, Silver: *silver, Notes: *notes, UpdatedBy: operator})
		if err != nil {
			return err
		}
		return renderRates(out, []rates.Record{rec})

	case "attention":
		if err := fs.Parse(args); err != nil {
			return err
		}
		res, err := a.Orders.Attention(ctx, orders.Page{Limit: *limit})
		if err != nil {
			return err
		}
		if err := renderOrders(out, res.Items); err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "%d order(s) need attention\n", res.Total)
		return err

	case "stats":
		st, err := a.Orders.Stats(ctx)
		if err != nil {
			return err
		}
		return renderStats(out, st)
	}

	usage(out)
	return fmt.Errorf("unknown command %q", cmd)
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: ratectl current | history [-limit n] | record -gold g -silver s [-notes text] | attention [-limit n] | stats")
}
