package config

type SecurityLevel int

const (
	SecurityPublic   SecurityLevel = iota // No authentication
	SecurityCustomer                      // Customer access token required
	SecurityStaff                         // Station staff access token required
)

// EndpointSecurityConfig maps "METHOD route-template" to the security level
// the HTTP API enforces for it. Routes not listed require SecurityCustomer.
var EndpointSecurityConfig = map[string]SecurityLevel{
	// Payment processor redirect lands without a customer session
	"GET /api/v1/payments/callback": SecurityPublic,

	// Health
	"GET /healthz": SecurityPublic,

	// Booking flow
	"POST /api/v1/reservations/preview":     SecurityCustomer,
	"POST /api/v1/reservations/{id}/hold":   SecurityCustomer,
	"POST /api/v1/reservations/{id}/cancel": SecurityCustomer,
	"GET /api/v1/reservations/{id}":         SecurityCustomer,
	"GET /api/v1/contracts/{key}/document":  SecurityCustomer,
	"GET /ws/reservations/{id}":             SecurityCustomer,

	// Station desk
	"POST /api/v1/reservations/{id}/start":    SecurityStaff,
	"POST /api/v1/reservations/{id}/complete": SecurityStaff,
}

// RequiredSecurityLevel returns the level for a route, defaulting to SecurityCustomer.
func RequiredSecurityLevel(method, pathTemplate string) SecurityLevel {
	if level, ok := EndpointSecurityConfig[method+" "+pathTemplate]; ok {
		return level
	}
	return SecurityCustomer
}
