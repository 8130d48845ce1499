// Command powermap imports map data into the revision store and builds power
// grids from the command line.
package main

import (
	"os"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env.local")
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
