package protocol

const (
	// Transport/request validation.
	CodeBadRequest = "E_BAD_REQUEST"

	// Rule/action layer.
	CodeNotGrayscale = "E_NOT_GRAYSCALE"
	CodeNoResource   = "E_NO_RESOURCE"
	CodeRateLimit    = "E_RATE_LIMIT"
	CodeCooldown     = "E_COOLDOWN"
	CodeOccupied     = "E_OCCUPIED"
	CodePrereq       = "E_PREREQ"
	CodeStorage      = "E_STORAGE"
	CodeUnknownKind  = "E_UNKNOWN_KIND"
	CodeTooClose     = "E_TOO_CLOSE"

	CodeInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	CodeBadRequest:   {},
	CodeNotGrayscale: {},
	CodeNoResource:   {},
	CodeRateLimit:    {},
	CodeCooldown:     {},
	CodeOccupied:     {},
	CodePrereq:       {},
	CodeStorage:      {},
	CodeUnknownKind:  {},
	CodeTooClose:     {},
	CodeInternal:     {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
