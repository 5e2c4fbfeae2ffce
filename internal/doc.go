// Package internal contains helper utilities that are intentionally private
// to mobiauth: challenge token generation, numeric OTP generation, and the
// one-way token digest used as the session storage key.
//
// # What this package must NOT do
//
//   - Export types that appear in the public mobiauth API.
//   - Be imported by any package outside the mobiauth module.
package internal
