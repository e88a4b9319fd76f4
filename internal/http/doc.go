// Package http provides the JSON API handlers and middleware for Saturday.
//
// Authentication is carried exclusively by the auth_token cookie holding a signed session
// token. Routes sit behind one of four gates:
//   - public: no token required (school catalog, register, login, logout, health).
//   - optional: the principal is attached when a valid token is present (GET /api/auth/me).
//   - authenticated: a valid token is required; absent tokens yield 401 AUTH_REQUIRED and
//     invalid or expired tokens yield 401 AUTH_INVALID and clear the cookie.
//   - scoped: authenticated and the token must carry a school; otherwise 403
//     SCHOOL_REQUIRED with the cookie left in place.
//
// Availability endpoints:
//   - GET /api/availability?startDate&endDate: the caller's records in the inclusive range.
//   - PATCH /api/availability/{date}: body {"state":"available"|"planned"}; upserts.
//   - DELETE /api/availability/{date}: returns the day to unset; 204 even when no record existed.
//   - GET /api/availability/school/{date}: school members available or planned on the day.
//
// Errors are returned as {"error_code","message","errors"}. Request and response DTOs live
// alongside their handlers.
package http
