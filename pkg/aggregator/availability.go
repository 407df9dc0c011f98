package aggregator

// Availability holds per-group liveness for one snapshot.
type Availability struct {
	CO2         bool
	Particulate bool
	Environment bool
}

// AvailabilityOf maps a snapshot to liveness flags. A particulate reading
// counts as available whenever it carries data, however old.
func AvailabilityOf(s Snapshot) Availability {
	return Availability{
		CO2:         s.CO2 != nil,
		Particulate: s.Particulate != nil && s.Particulate.HasData(),
		Environment: s.Environment != nil,
	}
}
