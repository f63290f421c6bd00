package main

import (
	"log"
	"os"

	_ "github.com/joho/godotenv/autoload"

	"yashubustudio/brandmatch/internal/app"
)

func main() {
	if err := app.Run(os.Getenv("BRANDMATCH_CONFIG")); err != nil {
		log.Fatalf("brandmatch: %v", err)
	}
}
