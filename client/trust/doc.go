// Package trust decides whether a TLS peer is trusted according to an
// optional pinning policy.
//
// # Policies
//
// Without a [Policy] the [Validator] passes every challenge through and the
// transport's default verification applies. With a policy, every server trust
// challenge is evaluated from scratch: the presented chain is verified against
// the configured roots and then the pinned material is compared:
//
//	v, err := trust.NewValidator(trust.PublicKeyPinning{Hash: pin}, logger)
//	d := v.Evaluate(ctx, challenge)
//	if d.Disposition != trust.UseCredential { ... }
//
// # Digests
//
// Pins are SHA-256 digests. [ParseDigest] accepts standard base64 (with or
// without a "sha256/" prefix), hex, or a base58 sha2-256 multihash.
// [PublicKeyHash] and [CertificateHash] produce the base64 form.
package trust
