package match

// Method records how a document line ended up linked to a cost line.
type Method string

const (
	// MethodNone marks records that never went through matching.
	MethodNone Method = "none"
	// MethodFuzzy marks links accepted straight from the similarity score.
	MethodFuzzy Method = "fuzzy"
	// MethodAI marks links picked by the configured resolver.
	MethodAI Method = "ai"
	// MethodManual marks links set or corrected by hand.
	MethodManual Method = "manual"
)
