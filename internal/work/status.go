package work

// itemTransitions lists every allowed WorkItem status change.
var itemTransitions = map[Status]map[Status]bool{
	StatusPending:    {StatusInProgress: true},
	StatusInProgress: {StatusDone: true, StatusPending: true, StatusBlocked: true},
	StatusBlocked:    {StatusPending: true},
	StatusDone:       {},
}

// CanTransition reports whether an item may move from one status to another.
func CanTransition(from, to Status) bool {
	return itemTransitions[from][to]
}

// specTransitions lists every allowed Spec status change other than
// deprecation, which any live status may enter.
var specTransitions = map[SpecStatus]map[SpecStatus]bool{
	SpecDraft:       {SpecInReview: true},
	SpecInReview:    {SpecDraft: true, SpecApproved: true},
	SpecApproved:    {SpecImplemented: true},
	SpecImplemented: {},
	SpecDeprecated:  {},
}

// CanTransitionSpec reports whether a spec may move from one status to another.
func CanTransitionSpec(from, to SpecStatus) bool {
	if to == SpecDeprecated {
		return from != SpecDeprecated && specTransitions[from] != nil
	}
	return specTransitions[from][to]
}

// ValidSpecStatus reports whether s is a recognized spec status.
func ValidSpecStatus(s SpecStatus) bool {
	_, ok := specTransitions[s]
	return ok
}
