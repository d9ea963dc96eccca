package domain

// SubjectRef identifies the account a verification or reset token is bound
// to: the kind plus the row identifier.
type SubjectRef struct {
	Type SubjectType
	ID   string
}

// UserRef builds a reference to an end-user account.
func UserRef(id string) SubjectRef {
	return SubjectRef{Type: SubjectTypeUser, ID: id}
}

// KeeperRef builds a reference to a keeper account.
func KeeperRef(id string) SubjectRef {
	return SubjectRef{Type: SubjectTypeKeeper, ID: id}
}
