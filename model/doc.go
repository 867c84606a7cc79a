// Package model defines core identity types shared across astrodb packages.
//
// # Identity Types
//
//   - Key: Object identity, either a numeric catalog id or a short
//     designation string (a tagged sum, never both)
//   - RowID: Dense, table-local record identifier assigned at import
//
// Keys are constructed with [NumericKey] or [DesignationKey]:
//
//	k := model.NumericKey(118218)
//	k := model.DesignationKey("GJ 551")
//
// The zero Key has kind [KeyKindInvalid] and identifies nothing.
package model
