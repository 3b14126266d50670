// Package auth issues and verifies the bearer tokens that guard the
// inspection API.
//
// Tokens are HS256 JWTs signed with the configured secret. Each carries a
// role:
//   - viewer: read history, the active filter, saved rules and activity
//   - operator: everything a viewer can do plus changing the filter,
//     editing saved rules, clearing history and publishing
//
// There are no user accounts. Operators mint tokens with
// `mqttinspect token` and hand them to whoever needs access.
package auth
