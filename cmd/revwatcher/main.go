package main

import (
	"github.com/joho/godotenv"

	"github.com/joshuadevelopsgames/crm-demo-sub003/internal/cli"
)

func main() {
	// Optional .env for local development; config and env vars still win.
	_ = godotenv.Load()

	cli.Execute()
}
