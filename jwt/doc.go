// Package jwt manages access-token issuance and verification using a
// pluggable key provider and strict validation semantics suitable for
// low-latency authentication paths.
package jwt
