package acmeendpoints

var (
	// LetsEncryptLive is the historical legacy-dialect Let's Encrypt
	// production directory.
	LetsEncryptLive = Endpoint{
		Code:         "LetsEncryptLive",
		Title:        "Let's Encrypt (Live)",
		DirectoryURL: "https://acme-v01.api.letsencrypt.org/directory",
		Live:         true,
	}

	// LetsEncryptStaging is the historical legacy-dialect Let's Encrypt
	// staging directory, a candidate value for SessionConfig.CATesting
	// (spec.md §6 caTesting).
	LetsEncryptStaging = Endpoint{
		Code:         "LetsEncryptStaging",
		Title:        "Let's Encrypt (Staging)",
		DirectoryURL: "https://acme-staging.api.letsencrypt.org/directory",
		Live:         false,
	}
)

// DefaultEndpoint is the suggested default when no "ca" is configured.
var DefaultEndpoint = &LetsEncryptLive

var builtinEndpoints = []*Endpoint{
	&LetsEncryptLive,
	&LetsEncryptStaging,
}
