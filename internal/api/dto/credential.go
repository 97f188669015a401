package dto

// CredentialUpsert This is necessary to prevent any Mass Assignment Vulnerability attack
type CredentialUpsert struct {
	Key      string `json:"key"`
	Value    string `json:"value"`
	Encrypt  bool   `json:"encrypt"`
	Category string `json:"category"`
}

// AllowlistUpdate replaces the allow-list extension with the given
// comma-separated CIDR ranges.
type AllowlistUpdate struct {
	CIDRs string `json:"cidrs"`
}
