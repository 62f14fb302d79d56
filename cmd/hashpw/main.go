// Package main generates a bcrypt hash for the ADMIN_PASSWORD_HASH
// configuration value.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/deskchat-io/deskchat/internal/server"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <password>\n", os.Args[0])
		os.Exit(2)
	}

	hash, err := server.HashAdminPassword(os.Args[1])
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}
	fmt.Println(hash)
}
