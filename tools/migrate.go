// Standalone migration runner: go run ./tools
package main

import (
	"fmt"
	"os"

	"echoshop/database"
)

func main() {
	fmt.Println("Running database migrations...")

	if _, err := database.InitDB(); err != nil {
		fmt.Println("Migration failed:", err)
		os.Exit(1)
	}

	fmt.Println("Migrations completed successfully")
}
