package main

import (
	"errors"
	"io/fs"
	"log"

	"github.com/chew-z/vision-dispatch/cmd"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("Failed to load .env: %v", err)
	}
	cmd.Execute()
}
