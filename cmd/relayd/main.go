// Command relayd runs the relay broker daemon with the default configuration
// lookup. Set RELAY_CONFIG to point at a specific file.
package main

import (
	"context"
	"log"
	"os"

	"relay/internal/config"
	"relay/internal/daemonrun"
)

func main() {
	cfg, _, _, err := config.Load(os.Getenv("RELAY_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{}); err != nil {
		log.Fatalf("relayd: %v", err)
	}
}
