package main

import (
	"log"

	_ "github.com/joho/godotenv/autoload"

	"planora/cmd"
)

func main() {
	if err := cmd.Start(); err != nil {
		log.Fatal(err)
	}
}
