package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/hunterwarburton/taxassist/internal/app"
	"github.com/hunterwarburton/taxassist/internal/config"
	"github.com/hunterwarburton/taxassist/internal/logger"
	"github.com/hunterwarburton/taxassist/internal/tui"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to optional YAML config")
	flag.Parse()

	_ = godotenv.Load()

	// Logs would corrupt the alternate screen; keep them off.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	a, err := app.Build(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()
	defer logger.Sync()

	m := tui.New(a.Pipeline, a.Generator.Provider(), cfg.API.RequestTimeout)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
