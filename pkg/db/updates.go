package db

import (
	"context"
	"fmt"
	"time"

	"github.com/grexie/reinforce/pkg/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	UpdatesCollection = "updates"
	RunsCollection    = "runs"
)

// UpdateRecord is one optimizer step of a training run.
type UpdateRecord struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	Run            string             `bson:"run"`
	Step           int                `bson:"step"`
	Loss           float64            `bson:"loss"`
	Objective      float64            `bson:"objective"`
	Regularization float64            `bson:"regularization"`
	Instances      int                `bson:"instances"`
	ReturnMean     float64            `bson:"returnMean"`
	ReturnMin      float64            `bson:"returnMin"`
	ReturnMax      float64            `bson:"returnMax"`
	ReturnStdDev   float64            `bson:"returnStdDev"`
	Duration       time.Duration      `bson:"duration"`
	Timestamp      time.Time          `bson:"timestamp"`
}

// RunRecord summarises every update stored for a run.
type RunRecord struct {
	Run        string    `bson:"_id"`
	Steps      int       `bson:"steps"`
	LastStep   int       `bson:"lastStep"`
	BestReturn float64   `bson:"bestReturn"`
	UpdatedAt  time.Time `bson:"updatedAt"`
}

func NewUpdateRecord(run string, m model.UpdateMetrics) UpdateRecord {
	return UpdateRecord{
		Run:            run,
		Step:           m.Step,
		Loss:           m.Loss,
		Objective:      m.Objective,
		Regularization: m.Regularization,
		Instances:      m.Instances,
		ReturnMean:     m.Returns.Mean,
		ReturnMin:      m.Returns.Min,
		ReturnMax:      m.Returns.Max,
		ReturnStdDev:   m.Returns.StdDev,
		Duration:       m.Duration,
		Timestamp:      time.Now().UTC(),
	}
}

func EnsureUpdateIndexes(db *mongo.Database, ctx context.Context) error {
	return EnsureIndex(db, ctx, UpdatesCollection, mongo.IndexModel{
		Keys:    bson.D{{Key: "run", Value: 1}, {Key: "step", Value: 1}},
		Options: options.Index().SetName("run_step").SetUnique(true),
	})
}

// runSummary folds r into the run summary. steps only grows when r is a step
// the run has not recorded before.
func runSummary(r UpdateRecord, inserted bool) bson.M {
	steps := 0
	if inserted {
		steps = 1
	}
	return bson.M{
		"$inc": bson.M{"steps": steps},
		"$max": bson.M{"lastStep": r.Step, "bestReturn": r.ReturnMean},
		"$set": bson.M{"updatedAt": r.Timestamp},
	}
}

// SaveUpdate stores r and folds it into the run summary. Saving the same step
// twice replaces the earlier record without counting the step again.
func SaveUpdate(db *mongo.Database, ctx context.Context, r UpdateRecord) error {
	_, err := WithTransaction(db, ctx, func(ctx context.Context) (any, error) {
		filter := bson.M{"run": r.Run, "step": r.Step}
		res, err := db.Collection(UpdatesCollection).ReplaceOne(ctx, filter, r, options.Replace().SetUpsert(true))
		if err != nil {
			return nil, fmt.Errorf("failed to save update %s/%d: %w", r.Run, r.Step, err)
		}

		if _, err := db.Collection(RunsCollection).UpdateOne(ctx,
			bson.M{"_id": r.Run},
			runSummary(r, res.UpsertedCount == 1),
			options.Update().SetUpsert(true)); err != nil {
			return nil, fmt.Errorf("failed to update run %s: %w", r.Run, err)
		}
		return nil, nil
	})
	return err
}

// Updates returns every update of run ordered by step.
func Updates(db *mongo.Database, ctx context.Context, run string) ([]UpdateRecord, error) {
	cur, err := db.Collection(UpdatesCollection).Find(ctx,
		bson.M{"run": run},
		options.Find().SetSort(bson.D{{Key: "step", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query updates: %w", err)
	}
	defer cur.Close(ctx)

	out := []UpdateRecord{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode updates: %w", err)
	}
	return out, nil
}

func Run(db *mongo.Database, ctx context.Context, run string) (RunRecord, error) {
	var r RunRecord
	if err := db.Collection(RunsCollection).FindOne(ctx, bson.M{"_id": run}).Decode(&r); err != nil {
		return r, fmt.Errorf("failed to load run %s: %w", run, err)
	}
	return r, nil
}
