// Package bundle turns a template directory plus a dynamic descriptor into
// a signed wallet bundle.
//
// # Assembly
//
// An [Assembler] loads the template from a [Store], validates the
// [Descriptor], overlays its generated fields on the template's descriptor
// JSON, injects authenticationToken and webServiceURL, adds any images, and
// hands the file set to the signing package for the manifest and detached
// signature. The result is a zip archive returned in memory.
//
// # Descriptors
//
// [PassDescriptor] mounts a coupon layout. [OrderDescriptor] mounts an order
// body with money given in minor units, so a grand total of 4999 USD becomes
// an amount of 49.99. Validation failures are [*FieldError] values naming the
// offending field.
//
// # Verification
//
// [Open] and [VerifyContents] recompute every digest and check the
// signature, which is what a wallet client does before accepting a bundle.
package bundle
