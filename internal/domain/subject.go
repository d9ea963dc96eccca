package domain

// SubjectType differentiates end-user accounts from keeper (staff) accounts.
type SubjectType string

const (
	SubjectTypeUser   SubjectType = "USER"
	SubjectTypeKeeper SubjectType = "KEEPER"
)

// Valid reports whether the subject type is one of the known kinds.
func (s SubjectType) Valid() bool {
	return s == SubjectTypeUser || s == SubjectTypeKeeper
}
