package broker

import "fmt"

const (
	ProfileAgents  = "agents"
	ProfileAdapter = "adapter"
)

// RuntimeContext carries the non-secret deployment facts used to compose
// override values, e.g. the peer adapter's service address.
type RuntimeContext struct {
	AdapterHost string
	AdapterPort string
}

// CredentialSpec declares how one bundle key is resolved. Override wins over
// the store; Default applies only when the store has no value.
type CredentialSpec struct {
	Key        string
	Decrypt    bool
	Default    string
	HasDefault bool
	Override   func(RuntimeContext) string
}

func withDefault(key, fallback string) CredentialSpec {
	return CredentialSpec{Key: key, Default: fallback, HasDefault: true}
}

// profiles maps each consumer profile to its ordered credential list.
// Adding a consumer is a data change here, not new branching.
var profiles = map[string][]CredentialSpec{
	ProfileAgents: {
		{Key: "OPENAI_API_KEY", Decrypt: true},
		withDefault("OPENAI_MODEL", "gpt-4o-mini"),
		withDefault("DOCUMENT_AGENT_MODEL", "openai:gpt-4o"),
		withDefault("RAG_AGENT_MODEL", "openai:gpt-4o-mini"),
		withDefault("TASK_AGENT_MODEL", "openai:gpt-4o"),
		withDefault("AGENT_RATE_LIMIT_ENABLED", "true"),
		withDefault("AGENT_MAX_RETRIES", "3"),
		{Key: "ADAPTER_SERVICE_URL", Override: adapterServiceURL},
		withDefault("LOG_LEVEL", "INFO"),
	},
	ProfileAdapter: {
		withDefault("LOG_LEVEL", "INFO"),
	},
}

func adapterServiceURL(rc RuntimeContext) string {
	return fmt.Sprintf("http://%s:%s", rc.AdapterHost, rc.AdapterPort)
}

// Profiles lists the known consumer profile names.
func Profiles() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	return names
}
