package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Transport Errors (B001-B019)
	// ============================================

	"B001": {
		Category: CategoryTransport,
		Message:  "Worker connection failed",
		Detail:   "The transport could not establish a connection. The session stays uninitialized and the next render pass may try again.",
	},
	"B002": {
		Category: CategoryTransport,
		Message:  "Worker connection closed",
		Detail:   "The connection was torn down; no further messages can be sent on it.",
	},
	"B003": {
		Category: CategoryTransport,
		Message:  "Worker mailbox full",
		Detail:   "The worker has not drained its mailbox fast enough to accept another input.",
	},
	"B004": {
		Category: CategoryTransport,
		Message:  "Handshake rejected",
		Detail:   "The worker host refused the connection during the hello exchange.",
	},

	// ============================================
	// Lifecycle Errors (B020-B039)
	// ============================================

	"B020": {
		Category: CategoryLifecycle,
		Message:  "Session already installed",
		Detail:   "Install may be called once per component instance. Use Refresh or Use on later passes.",
	},
	"B021": {
		Category: CategoryLifecycle,
		Message:  "Session unmounted",
		Detail:   "The owning component instance has unmounted; a new instance gets a new session.",
	},
	"B022": {
		Category: CategoryLifecycle,
		Message:  "Handle released",
		Detail:   "Send was called on a handle after Release. Clone a live handle instead of reusing a released one.",
	},
	"B023": {
		Category: CategoryLifecycle,
		Message:  "Hook slot type mismatch",
		Detail:   "The hook slot at this position holds a different type. Hooks must be called in the same order on every render.",
	},
	"B024": {
		Category: CategoryLifecycle,
		Message:  "Connection in progress",
		Detail:   "Use or Install was called from inside a handler while the first connect was still running. The handler was refreshed; the connection is returned once Connect completes.",
	},

	// ============================================
	// Protocol Errors (B040-B059)
	// ============================================

	"B040": {
		Category: CategoryProtocol,
		Message:  "Malformed frame",
		Detail:   "A frame could not be decoded.",
	},
	"B041": {
		Category: CategoryProtocol,
		Message:  "Unexpected frame",
		Detail:   "A frame arrived that is not valid in the current connection state.",
	},
	"B042": {
		Category: CategoryProtocol,
		Message:  "Payload encoding failed",
		Detail:   "A message could not be encoded or decoded with the configured codec.",
	},
	"B043": {
		Category: CategoryProtocol,
		Message:  "Frame too large",
		Detail:   "An encoded input or output exceeds the largest payload a frame can carry (65535 bytes).",
	},

	// ============================================
	// Worker Errors (B060-B079)
	// ============================================

	"B060": {
		Category: CategoryWorker,
		Message:  "Worker not found",
		Detail:   "No worker is registered under the requested name.",
	},
	"B061": {
		Category: CategoryWorker,
		Message:  "Worker panicked",
		Detail:   "The worker panicked while handling an input. The input is dropped and the connection stays open.",
	},

	// ============================================
	// Config Errors (B080-B099)
	// ============================================

	"B080": {
		Category: CategoryConfig,
		Message:  "Config file not found",
		Detail:   "No bridge.json or bridge.yaml was found at the given path.",
	},
	"B081": {
		Category: CategoryConfig,
		Message:  "Invalid config",
		Detail:   "The configuration file could not be parsed or failed validation.",
	},
}

// GetAllCodes returns all registered error codes.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds a new error template to the registry.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}
