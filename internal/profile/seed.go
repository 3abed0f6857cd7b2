package profile

import "context"

var baselineAllergies = []struct {
	name string
	typ  string
}{
	{"Penicillin", "medication"},
	{"NSAIDs", "medication"},
	{"Sulfa drugs", "medication"},
	{"Seafood", "food"},
	{"Dust", "environmental"},
}

var baselineConditions = []string{
	"Diabetes",
	"Hypertension",
	"Asthma",
	"Tachycardia",
	"Gastric ulcer",
}

// SeedAllergies inserts the baseline catalog, skipping names that already
// exist. Calling it twice leaves the catalog unchanged.
func (r *Repo) SeedAllergies(ctx context.Context) error {
	for _, a := range baselineAllergies {
		if err := r.CreateAllergy(ctx, a.name, a.typ); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repo) SeedConditions(ctx context.Context) error {
	for _, name := range baselineConditions {
		if err := r.CreateCondition(ctx, name); err != nil {
			return err
		}
	}
	return nil
}
