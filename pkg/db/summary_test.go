package db

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson"
)

func TestRunSummaryCountsNewStepsOnly(t *testing.T) {
	r := UpdateRecord{Run: "run", Step: 3, ReturnMean: 12}

	for _, tc := range []struct {
		inserted bool
		want     int
	}{{true, 1}, {false, 0}} {
		update := runSummary(r, tc.inserted)
		if steps := update["$inc"].(bson.M)["steps"]; steps != tc.want {
			t.Fatalf("inserted=%t: expected steps increment %d, got %v", tc.inserted, tc.want, steps)
		}
		maxima := update["$max"].(bson.M)
		if maxima["lastStep"] != 3 || maxima["bestReturn"] != 12.0 {
			t.Fatalf("unexpected $max %v", maxima)
		}
	}
}
