package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/noah-isme/subcart/internal/cart"
	"github.com/noah-isme/subcart/internal/catalog"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	store := catalog.NewStore(pool)
	for _, p := range products() {
		if err := store.Upsert(ctx, p); err != nil {
			log.Fatalf("Failed to seed product %s: %v", p.Title, err)
		}
		log.Printf("Seeded %s", p.Title)
	}

	log.Println("Seeding completed successfully!")
}

func products() []catalog.Product {
	return []catalog.Product{
		{
			ID:    uuid.MustParse("0c3f1f3a-9a2e-4c47-8f11-1c5a1f4b7001"),
			Title: "Paperback Novel", Price: 1500, NeedsShipping: true,
		},
		{
			ID:    uuid.MustParse("0c3f1f3a-9a2e-4c47-8f11-1c5a1f4b7002"),
			Title: "Ceramic Mug", Price: 900, NeedsShipping: true,
		},
		{
			ID:    uuid.MustParse("0c3f1f3a-9a2e-4c47-8f11-1c5a1f4b7003"),
			Title: "Streaming Plan (Monthly)", Price: 2500, IsSubscription: true,
			Interval: 1, Period: cart.PeriodMonth, SignUpFee: 1000,
		},
		{
			ID:    uuid.MustParse("0c3f1f3a-9a2e-4c47-8f11-1c5a1f4b7004"),
			Title: "Streaming Plan (Yearly)", Price: 25000, IsSubscription: true,
			Interval: 1, Period: cart.PeriodYear,
		},
		{
			ID:    uuid.MustParse("0c3f1f3a-9a2e-4c47-8f11-1c5a1f4b7005"),
			Title: "Coffee Box", Price: 2000, IsSubscription: true,
			Interval: 1, Period: cart.PeriodMonth,
			TrialLength: 14, TrialPeriod: cart.PeriodDay,
			NeedsShipping: true,
		},
		{
			ID:    uuid.MustParse("0c3f1f3a-9a2e-4c47-8f11-1c5a1f4b7006"),
			Title: "Magazine (6 issues)", Price: 1200, IsSubscription: true,
			Interval: 1, Period: cart.PeriodMonth, Length: 6,
			NeedsShipping: true,
		},
		{
			ID:    uuid.MustParse("0c3f1f3a-9a2e-4c47-8f11-1c5a1f4b7007"),
			Title: "Gym Membership (Synced)", Price: 4500, IsSubscription: true,
			Interval: 1, Period: cart.PeriodMonth, SyncDay: 1,
		},
		{
			ID:    uuid.MustParse("0c3f1f3a-9a2e-4c47-8f11-1c5a1f4b7008"),
			Title: "Starter Kit Subscription", Price: 3000, IsSubscription: true,
			Interval: 2, Period: cart.PeriodWeek,
			NeedsShipping: true, OneTimeShipping: true,
		},
	}
}
