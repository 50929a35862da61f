// Command createtoken mints a signed access token for local development.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/studyhall/studyhall-backend/internal/auth"
)

func main() {
	userID := flag.String("user", "", "user ID to embed in the token (random when empty)")
	email := flag.String("email", "dev@localhost", "email to embed in the token")
	admin := flag.Bool("admin", false, "grant the admin role")
	flag.Parse()

	secret := os.Getenv("STUDYHALL_JWT_SECRET")
	if secret == "" {
		secret = "change-me-in-production"
	}

	id := *userID
	if id == "" {
		id = uuid.New().String()
	}

	role := ""
	if *admin {
		role = auth.RoleAdmin
	}

	jwtService := auth.NewJWTService(secret, "studyhall-backend")
	token, err := jwtService.GenerateToken(id, *email, role)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to sign token:", err)
		os.Exit(1)
	}

	fmt.Printf("Access token for %s (%s):\n%s\n", *email, id, token)
}
