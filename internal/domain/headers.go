package domain

// Protocol headers understood by the gateway. Addressing headers pick the
// action, token headers carry credentials, version headers are accepted but
// currently informational.
const (
	HeaderServiceName    = "x-service-name"
	HeaderServiceVersion = "x-service-version"
	HeaderDomainName     = "x-domain-name"
	HeaderActionName     = "x-action-name"
	HeaderActionVersion  = "x-action-version"

	HeaderAccessToken  = "x-user-access-token"
	HeaderRefreshToken = "x-user-refresh-token"
)

// SchemaHeaders lists the headers that address a schema action.
func SchemaHeaders() []string {
	return []string{
		HeaderServiceName,
		HeaderServiceVersion,
		HeaderDomainName,
		HeaderActionName,
		HeaderActionVersion,
	}
}

// TokenHeaders lists the headers that carry user credentials.
func TokenHeaders() []string {
	return []string{HeaderAccessToken, HeaderRefreshToken}
}
