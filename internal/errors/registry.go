package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category   Category
	Message    string
	Detail     string
	Suggestion string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Connection Errors (W001-W019)
	// ============================================

	"W001": {
		Category:   CategoryConnection,
		Message:    "Connection failed",
		Detail:     "The WebSocket handshake did not complete.",
		Suggestion: "Check that the server is running and the URL uses ws:// or wss://",
	},
	"W002": {
		Category:   CategoryConnection,
		Message:    "Reconnect attempts exhausted",
		Detail:     "The connection was lost and every scheduled retry failed.",
		Suggestion: "Raise session.maxReconnectAttempts or check the network path to the server",
	},
	"W003": {
		Category:   CategoryConnection,
		Message:    "Heartbeat timeout",
		Detail:     "The server stopped answering pings and the session was closed with code 3010.",
		Suggestion: "Raise session.pingTimeout if the server is slow to answer",
	},
	"W004": {
		Category: CategoryConnection,
		Message:  "Connection closed",
	},

	// ============================================
	// Protocol Errors (W020-W039)
	// ============================================

	"W020": {
		Category:   CategoryProtocol,
		Message:    "Invalid close code",
		Detail:     "Application close codes must be between 3000 and 3999. Code 3010 is reserved for heartbeat timeouts.",
		Suggestion: "Pick a code such as 3000 or 3001",
	},
	"W021": {
		Category: CategoryProtocol,
		Message:  "Invalid payload",
		Detail:   "The payload could not be encoded as a frame.",
	},

	// ============================================
	// Config Errors (W040-W059)
	// ============================================

	"W040": {
		Category:   CategoryConfig,
		Message:    "Config file not found",
		Suggestion: "Create a wsm.json or pass --config",
	},
	"W041": {
		Category: CategoryConfig,
		Message:  "Invalid config file",
		Detail:   "wsm.json is not valid JSON or a duration is malformed.",
	},
	"W042": {
		Category: CategoryConfig,
		Message:  "Invalid configuration",
	},
	"W043": {
		Category:   CategoryConfig,
		Message:    "Config file already exists",
		Suggestion: "Pass --force to overwrite it, or a setting flag to update it",
	},

	// ============================================
	// Source Errors (W060-W079)
	// ============================================

	"W060": {
		Category:   CategorySource,
		Message:    "Payload source not readable",
		Suggestion: "Check the path, or use s3://bucket/key for objects in S3",
	},
	"W061": {
		Category:   CategorySource,
		Message:    "Payload too large",
		Suggestion: "Raise source.maxBytes in wsm.json",
	},
	"W062": {
		Category:   CategorySource,
		Message:    "S3 object not readable",
		Suggestion: "Check the bucket, key, region and AWS credentials",
	},

	// ============================================
	// CLI Errors (W080-W099)
	// ============================================

	"W080": {
		Category: CategoryCLI,
		Message:  "Invalid arguments",
	},
	"W081": {
		Category:   CategoryCLI,
		Message:    "Server failed",
		Suggestion: "Check that the listen address is free",
	},
}
