package main

import (
	"log"

	"github.com/kroleg/homelab/internal/app"
)

func main() {
	if err := app.New().Run(); err != nil {
		log.Fatalf("❌ dnsvpn failed to start: %v", err)
	}
}
