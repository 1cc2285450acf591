package places

// AlarmProvider identifies which tier runs a place's alarm logic.
type AlarmProvider string

const (
	// ProviderPlatform means the cloud platform owns incident identity.
	ProviderPlatform AlarmProvider = "platform"
	// ProviderHub means the local hub runs alarm logic, possibly offline,
	// and is authoritative for incident identity.
	ProviderHub AlarmProvider = "hub"
)

// Context carries the per-place attributes the incident coordinator needs.
// Callers resolve it from place configuration before entering the
// dispatcher; the services themselves never load place records.
type Context struct {
	PlaceID       string
	AccountID     string
	Population    string
	Monitored     bool
	TestMode      bool
	AlarmProvider AlarmProvider
}

// HubAuthoritative reports whether the place's alarm provider is the hub.
func (c Context) HubAuthoritative() bool {
	return c.AlarmProvider == ProviderHub
}
