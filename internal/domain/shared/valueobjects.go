package shared

// ═══════════════════════════════════════════════════════════════════════════
// Identifier checks
// ═══════════════════════════════════════════════════════════════════════════

// RequireID returns an InvalidArgument error when id is not a positive
// database identifier.
func RequireID(domain, op, name string, id int64) error {
	if id <= 0 {
		return InvalidArgument(domain, op, name, id, "must be positive")
	}
	return nil
}

// RequireIDs checks several named identifiers and returns the first failure.
func RequireIDs(domain, op string, ids ...NamedID) error {
	for _, n := range ids {
		if err := RequireID(domain, op, n.Name, n.ID); err != nil {
			return err
		}
	}
	return nil
}

// NamedID pairs an identifier with the argument name used in error messages.
type NamedID struct {
	Name string
	ID   int64
}

// ID is shorthand for building a NamedID.
func ID(name string, id int64) NamedID {
	return NamedID{Name: name, ID: id}
}
