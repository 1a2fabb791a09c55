package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/huangang/larkticket/internal/config"
	"github.com/huangang/larkticket/internal/console/tui"
	"github.com/huangang/larkticket/internal/utils"
	"github.com/huangang/larkticket/pkg/apiclient"
	"github.com/huangang/larkticket/pkg/logger"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	defaultAddr := "http://127.0.0.1:" + cfg.Server.Port
	operator := os.Getenv("USER")

	addr := flag.String("addr", defaultAddr, "base URL of the larkticket server")
	secret := flag.String("secret", cfg.Auth.Secret, "HS256 secret used to sign the bearer token; empty sends no token")
	flag.StringVar(&operator, "operator", operator, "operator name carried in the token")
	location := flag.String("location", "/home", "start location, e.g. /detail?approval_code=X&type=edit")
	logDir := flag.String("log-dir", cfg.Log.Path, "directory for the console log file; empty disables logging")
	flag.Parse()

	logger.Setup(logger.Options{
		Level:    cfg.Log.Level,
		Path:     *logDir,
		Filename: "console.log",
		FileOnly: true,
	})

	var opts []apiclient.Option
	if *secret != "" {
		utils.SetJWTSecret(*secret)
		token, err := utils.GenerateToken(operator, max(cfg.Auth.ExpireHour, 1))
		if err != nil {
			fmt.Fprintf(os.Stderr, "sign token: %v\n", err)
			os.Exit(1)
		}
		opts = append(opts, apiclient.WithToken(token))
	}

	client := apiclient.New(*addr, opts...)
	logger.Info().Str("addr", *addr).Str("operator", operator).Msg("[console] starting")

	if _, err := tea.NewProgram(tui.New(client, *location), tea.WithAltScreen()).Run(); err != nil {
		logger.Error().Err(err).Msg("[console] exited with error")
		fmt.Fprintf(os.Stderr, "console: %v\n", err)
		os.Exit(1)
	}
}
