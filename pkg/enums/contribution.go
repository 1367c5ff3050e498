package enums

// ContributionStatus maps to the contribution_status enum.
type ContributionStatus string

const (
	ContributionStatusPending    ContributionStatus = "pending"
	ContributionStatusProcessing ContributionStatus = "processing"
	ContributionStatusCompleted  ContributionStatus = "completed"
	ContributionStatusFailed     ContributionStatus = "failed"
)

// String implements fmt.Stringer.
func (c ContributionStatus) String() string {
	return string(c)
}

// IsTerminal reports whether the contribution has been settled either way.
func (c ContributionStatus) IsTerminal() bool {
	return c == ContributionStatusCompleted || c == ContributionStatusFailed
}
