package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Aquilesorei/talon/internal/config"
	"github.com/Aquilesorei/talon/internal/db"
	"github.com/Aquilesorei/talon/internal/logging"
	"github.com/Aquilesorei/talon/internal/migrate"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <command>\n  migrate  apply pending schema migrations\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg, version, "talon-migrate")

	switch os.Args[1] {
	case "migrate":
		conn, err := db.Open(cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "db open: %v\n", err)
			os.Exit(1)
		}
		defer func() {
			if closeErr := db.Close(conn); closeErr != nil {
				logger.Error("db close", "err", closeErr)
			}
		}()

		if err := migrate.Run(context.Background(), conn, logger); err != nil {
			fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
			_ = db.Close(conn)
			os.Exit(1)
		}
		fmt.Println("migrations applied")
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}
}
