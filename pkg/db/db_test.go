package db_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/grexie/reinforce/pkg/db"
	"github.com/grexie/reinforce/pkg/model"
	"go.mongodb.org/mongo-driver/mongo"
)

var database *mongo.Database

func TestMain(m *testing.M) {
	if os.Getenv("MONGO_URL") == "" {
		log.Printf("MONGO_URL not set, skipping mongo tests")
		os.Exit(m.Run())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if d, err := db.ConnectMongo(ctx); err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	} else {
		database = d
	}

	code := m.Run()
	database.Client().Disconnect(context.Background())
	os.Exit(code)
}

func TestSaveUpdates(t *testing.T) {
	if database == nil {
		t.Skip("mongo not configured")
	}
	ctx := context.Background()
	run := fmt.Sprintf("test-%d", time.Now().UnixNano())
	defer database.Collection(db.UpdatesCollection).Drop(ctx)
	defer database.Collection(db.RunsCollection).Drop(ctx)

	if err := db.EnsureUpdateIndexes(database, ctx); err != nil {
		t.Fatalf("failed to ensure indexes: %v", err)
	}
	if err := db.EnsureUpdateIndexes(database, ctx); err != nil {
		t.Fatalf("ensuring indexes twice failed: %v", err)
	}

	for step, mean := range []float64{10, 30, 20} {
		r := db.NewUpdateRecord(run, model.UpdateMetrics{Step: step, Loss: 1, Returns: model.Stats{Mean: mean}})
		if err := db.SaveUpdate(database, ctx, r); err != nil {
			t.Fatalf("failed to save update: %v", err)
		}
	}

	resaved := db.NewUpdateRecord(run, model.UpdateMetrics{Step: 1, Loss: 2, Returns: model.Stats{Mean: 5}})
	if err := db.SaveUpdate(database, ctx, resaved); err != nil {
		t.Fatalf("failed to save update again: %v", err)
	}

	updates, err := db.Updates(database, ctx, run)
	if err != nil {
		t.Fatalf("failed to load updates: %v", err)
	}
	if len(updates) != 3 {
		t.Fatalf("expected 3 updates, got %d", len(updates))
	}
	for i, u := range updates {
		if u.Step != i {
			t.Fatalf("updates out of order: %d at %d", u.Step, i)
		}
	}
	if updates[1].Loss != 2 {
		t.Fatalf("expected the second save of step 1 to replace the first, got loss %f", updates[1].Loss)
	}

	r, err := db.Run(database, ctx, run)
	if err != nil {
		t.Fatalf("failed to load run: %v", err)
	}
	if r.Steps != 3 || r.LastStep != 2 || r.BestReturn != 30 {
		t.Fatalf("unexpected run summary %+v", r)
	}
}

func TestNewUpdateRecord(t *testing.T) {
	r := db.NewUpdateRecord("run", model.UpdateMetrics{
		Step:      4,
		Loss:      0.25,
		Instances: 12,
		Returns:   model.Stats{Mean: 3, Min: 1, Max: 5, StdDev: 2},
		Duration:  time.Second,
	})
	if r.Run != "run" || r.Step != 4 || r.Instances != 12 {
		t.Fatalf("unexpected record %+v", r)
	}
	if r.ReturnMin != 1 || r.ReturnMax != 5 || r.ReturnStdDev != 2 || r.Duration != time.Second {
		t.Fatalf("returns not copied: %+v", r)
	}
}
