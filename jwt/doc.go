// Package jwt implements the token codec: signed, time-limited access and
// refresh tokens over HS256 with separate secrets per kind.
//
// # What this package must NOT do
//
//   - Touch any store; the codec is pure given secrets and a clock.
//   - Accept a token signed under the other kind's secret.
package jwt
