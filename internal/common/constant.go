package common

// AuthorizationHeaderName carries the bearer token on outbound requests.
const AuthorizationHeaderName = "Authorization"

// BearerScheme is the authorization scheme used by the remote API. The server
// matches it case-insensitively.
const BearerScheme = "BEARER"

// Bucket preference keys shared between the host application and the
// coordinator.
const (
	PrefServerURL       = "serverUrl"
	PrefToken           = "token"
	PrefCurrentUserID   = "currentUserId"
	PrefCertificateName = "certificateName"
	PrefMaxFileSize     = "maxFileSize"
)

// Key prefixes for persisted coordinator records.
const (
	SessionKeyPrefix  = "share.session"
	ManifestKeyPrefix = "share.manifest"
	SealSaltKey       = "share.seal.salt"
)
