package httpip

const (
	securityEventMalformedToken = "malformed_token"
	securityEventChainTooLong   = "chain_too_long"
	securityEventAllTrusted     = "all_trusted"
	securityEventObfuscatedNode = "obfuscated_node"
	securityEventInvalidRemote  = "invalid_remote_addr"
)
