// Command turnstiled runs the attendance daemon in the foreground: camera
// capture, recognition, the control socket, and the web API. Configuration
// resolves through TURNSTILE_CONFIG or the default search path; `turnstile
// start` launches the same runtime through the CLI's hidden daemon command.
package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"

	"turnstile/internal/config"
	"turnstile/internal/daemonrun"
)

func main() {
	_ = godotenv.Load()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{}); err != nil {
		log.Fatalf("turnstiled: %v", err)
	}
}
