package model

// LinkState is the lifecycle state of an upstream connection.
type LinkState string

const (
	LinkActive               LinkState = "ACTIVE"
	LinkRequiresVerification LinkState = "REQUIRES_VERIFICATION"
)

// Link is a credential-linked connection to one upstream institution.
type Link struct {
	ItemID        string // opaque stable id issued by upstream
	Alias         string
	AccessToken   string
	State         LinkState
	SyncCursor    string // empty until the first successful sync
	InstitutionID string
}
