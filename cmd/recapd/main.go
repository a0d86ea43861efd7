// Command recapd runs the recap daemon in the foreground, for service
// managers that supervise the process directly. Set RECAP_CONFIG to use a
// configuration file other than the default location.
package main

import (
	"context"
	"log"
	"os"
	"strings"

	"recap/internal/config"
	"recap/internal/daemonrun"
)

func main() {
	cfg, _, _, err := config.Load(strings.TrimSpace(os.Getenv("RECAP_CONFIG")))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{}); err != nil {
		log.Fatalf("recapd: %v", err)
	}
}
