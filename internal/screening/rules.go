package screening

// Rule links a medication-name fragment to the catalog allergy that makes it
// unsafe. Rules are data: extending coverage is adding a row, not code.
// The shipped set mirrors the original product and is deliberately small;
// widening it is a clinical decision, not an engineering one.
type Rule struct {
	Substring   string // matched against the case-folded medication name
	AllergyName string // catalog allergy that triggers a block
	Reason      string // human-readable block reason
}

var defaultRules = []Rule{
	{Substring: "amox", AllergyName: "Penicillin", Reason: "Penicillin allergy"},
	{Substring: "ibu", AllergyName: "NSAIDs", Reason: "NSAIDs allergy"},
}
