// Package ir provides the data model shared by every rehook package.
//
// This package contains type definitions and pure functions only. All other
// internal packages import ir; ir imports nothing internal. This keeps the
// data model the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - NO float values anywhere: Int covers numbers, so canonical encodings
//     and the ids derived from them are stable across platforms.
//   - Hook state, events and effects are plain JSON with snake_case tags.
//   - Ids (request ids, form ids, effect ids) are content-addressed:
//     SHA-256 over RFC 8785 canonical JSON with domain separation.
//   - Logical sequence numbers only, never wall-clock timestamps.
package ir
