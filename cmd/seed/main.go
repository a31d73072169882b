package main

import (
	"database/sql"
	"fmt"
	"log"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/sitereply/sitereply/config"
	"github.com/sitereply/sitereply/pkg/helpers"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	dsn := cfg.PostgresDSN()
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatalf("failed to open db: %v", err)
	}
	defer func() { _ = db.Close() }()

	email := "demo@sitereply.local"
	password := "password123"
	username := "demoUser"
	name := "Demo User"
	hash, err := helpers.HashPassword(password)
	if err != nil {
		log.Fatalf("failed to hash password: %v", err)
	}

	var userID int64
	err = db.QueryRow(`
		INSERT INTO users (username, name, email, password_hash)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO UPDATE SET name=EXCLUDED.name
		RETURNING id
	`, username, name, email, hash).Scan(&userID)
	if err != nil {
		log.Fatalf("failed to seed user: %v", err)
	}
	fmt.Printf("seeded user: id=%d email=%s username=%s password=%s\n", userID, email, username, password)

	key, err := helpers.NewWidgetKey()
	if err != nil {
		log.Fatalf("failed to generate widget key: %v", err)
	}

	var widgetID int64
	var widgetKey string
	err = db.QueryRow(`
		INSERT INTO widgets (user_id, name, email, summary, public_key, plan)
		VALUES ($1, $2, $3, $4, $5, 'free')
		ON CONFLICT (name) DO UPDATE SET summary=EXCLUDED.summary
		RETURNING id, public_key
	`, userID, "Demo Bakery", "hello@demobakery.local",
		"Demo Bakery sells sourdough bread and pastries in downtown Springfield. Open 7am-3pm Tuesday through Sunday. We take custom cake orders with 48 hours notice.",
		key).Scan(&widgetID, &widgetKey)
	if err != nil {
		log.Fatalf("failed to seed widget: %v", err)
	}
	fmt.Printf("seeded widget: id=%d key=%s\n", widgetID, widgetKey)
	fmt.Printf("embed snippet: <script src=\"%s/widget.js\" data-key=\"%s\"></script>\n", cfg.BaseURL, widgetKey)
}
