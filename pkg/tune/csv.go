package tune

import (
	"encoding/csv"
	"fmt"
	"time"

	"github.com/grexie/reinforce/pkg/model"
)

func WriteCSVHeader(writer *csv.Writer) error {
	header := []string{
		"Generation", "Started", "Finished",

		"Fitness (Mean)", "Fitness (Min)", "Fitness (Max)", "Fitness (StdDev)",
		"Failed",

		"Fitness (Best Candidate)",
		"REINFORCE_LEARN_RATE (Best Candidate)",
		"REINFORCE_L2_PENALTY (Best Candidate)",
		"REINFORCE_DROPOUT_RATE (Best Candidate)",
		"REINFORCE_DISCOUNT (Best Candidate)",
		"REINFORCE_HIDDEN_SIZE (Best Candidate)",
	}
	if err := writer.Write(header); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

func WriteCSVRow(writer *csv.Writer, gen int, started, finished time.Time, population []Candidate, best Candidate, base model.Params) error {
	c := collect(population, base)
	fitness := summarize(c.fitness)
	params := best.Params(base)

	row := []string{
		fmt.Sprintf("%d", gen),
		started.UTC().Format(time.RFC3339),
		finished.UTC().Format(time.RFC3339),

		fmt.Sprintf("%0.6f", fitness.Mean), fmt.Sprintf("%0.6f", fitness.Min), fmt.Sprintf("%0.6f", fitness.Max), fmt.Sprintf("%0.6f", fitness.StdDev),
		fmt.Sprintf("%d", len(population)-len(c.fitness)),

		fmt.Sprintf("%0.6f", best.Fitness),
		fmt.Sprintf("%.06f", params.LearnRate),
		fmt.Sprintf("%.06f", params.L2Penalty),
		fmt.Sprintf("%.04f", params.DropoutRate),
		fmt.Sprintf("%.04f", params.Discount),
		fmt.Sprintf("%d", params.HiddenSize),
	}

	if err := writer.Write(row); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}
