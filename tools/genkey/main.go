package main

import (
	"fmt"
	"log"

	"github.com/RobNhz/zaptec-invoice-app/crypto"
)

func main() {
	fmt.Println("=== Session Secret Generator ===")
	fmt.Println()

	secret, err := crypto.GenerateSecret()
	if err != nil {
		log.Fatalf("Failed to generate secret: %v", err)
	}

	fmt.Println("Your new secret has been generated:")
	fmt.Println()
	fmt.Println(secret)
	fmt.Println()
	fmt.Println("Add this to your .env file:")
	fmt.Printf("JWT_SECRET=%s\n", secret)
	fmt.Println()
	fmt.Println("IMPORTANT:")
	fmt.Println("- Keep this secret out of version control")
	fmt.Println("- Changing it signs out every session")
	fmt.Println()
}
