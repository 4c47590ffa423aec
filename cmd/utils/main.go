package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/appetiteclub/apt"

	"github.com/opentill/opentill/cmd/utils/internal/commands"
)

const (
	appName    = "opentill-utils"
	appVersion = "0.1.0"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	config, err := apt.LoadConfig("UTILS", os.Args[2:])
	if err != nil {
		log.Fatalf("Cannot load config: %v", err)
	}

	logLevel, _ := config.GetString("log.level")
	if logLevel == "" {
		logLevel = "info"
	}
	logger := apt.NewLogger(logLevel)

	ctx := context.Background()
	command := os.Args[1]

	switch command {
	case "import-menu":
		if err := commands.ImportMenu(ctx, config, logger, os.Args[2:]); err != nil {
			log.Fatalf("Menu import failed: %v", err)
		}
		logger.Info("Menu import completed")

	case "reorder-menu":
		if err := commands.ReorderMenu(ctx, config, logger, os.Args[2:]); err != nil {
			log.Fatalf("Menu reorder failed: %v", err)
		}
		logger.Info("Menu reorder completed")

	case "reset-cache":
		if err := commands.ResetCache(ctx, config, logger); err != nil {
			log.Fatalf("Cache reset failed: %v", err)
		}
		logger.Info("Local cache reset completed")

	case "version":
		fmt.Printf("%s version %s\n", appName, appVersion)

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`%s - OpenTill utility commands

Usage:
  %s <command> [options]

Commands:
  import-menu <file.csv>    Import menu items into a running terminal (Name,Price,Category,Printer)
  reorder-menu <file.csv>   Reorder the menu by row position (single Name column)
  reset-cache               Delete the local terminal cache database - USE WITH CAUTION
  version                   Print version information
  help                      Show this help message

Environment Variables:
  UTILS_TERMINAL_URL   Terminal API base URL (default: http://localhost:8080)
  UTILS_STORE_PATH     Local cache database path (default: opentill.db)
  UTILS_LOG_LEVEL      Log level: debug, info, warn, error (default: info)

Examples:
  %s import-menu menu.csv
  %s reorder-menu order.csv
  UTILS_STORE_PATH=/var/lib/opentill/terminal.db %s reset-cache

`, appName, appName, appName, appName, appName)
}
