package plugin

const (
	//configSetupPath is where the chosen pairing suite and universe are stored
	configSetupPath = "config/setup"

	//signingKeyPath is where the ticket authority's ed25519 key lives
	signingKeyPath = "config/ticket_signing_key"

	publicKeyPath = "keys/public"
	masterKeyPath = "keys/master"

	subjectsPath    = "subjects"
	keypathSubjects = "/GIDS/"

	quotaPathPrefix = "quota/"
	blobPathPrefix  = "blobs/"

	engineCacheKey    = "engine"
	authorityCacheKey = "authority"
	verifierCacheKey  = "verifier"
)

type storedSetup struct {
	Suite    string   `json:"suite"`
	Universe []string `json:"universe"`
}

type storedSigningKey struct {
	Private []byte `json:"private"`
}

type storedUserKey struct {
	GID        string   `json:"GID"`
	Attributes []string `json:"attributes"`
	Key        []byte   `json:"key"`
}

type storedBlob struct {
	Sealed []byte `json:"sealed"`
	Policy string `json:"policy"`
}
