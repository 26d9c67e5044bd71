// Package ir provides the data model shared by every conformity package.
//
// This package contains type definitions plus the canonical encoding and
// fingerprint helpers built on them. All other internal packages import ir;
// ir imports nothing internal.
//
// Key design constraints:
//   - JSON tags are camelCase; field names are the compatibility contract
//     with the configuration administration UI and the presentation layer
//   - Rule checks are a closed set of variants (see Check)
//   - OrganizationConfig is a value: Clone before handing it to another
//     goroutine or mutating it
package ir
