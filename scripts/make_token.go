package main

import (
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Quick utility to mint a bearer token for local testing
// Usage: JWT_SECRET=... go run scripts/make_token.go <userID> <name> <role>
func main() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: JWT_SECRET=... go run scripts/make_token.go <userID> <name> <role>")
		fmt.Println("Example: JWT_SECRET=dev go run scripts/make_token.go 64a000000000000000000001 Budi responder")
		os.Exit(1)
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fmt.Println("JWT_SECRET must be set")
		os.Exit(1)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  os.Args[1],
		"name": os.Args[2],
		"role": os.Args[3],
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(24 * time.Hour).Unix(),
	})

	raw, err := token.SignedString([]byte(secret))
	if err != nil {
		fmt.Printf("Error signing token: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Bearer %s\n", raw)
}
