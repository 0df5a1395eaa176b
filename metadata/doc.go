// Package metadata provides the typed metadata documents attached to stored vectors.
//
// Metadata is an open-ended key/value map whose values are a small tagged union
// instead of `any`, so persistence stays well defined.
//
// # Metadata Types
//
// Metadata values can be:
//
//   - Null: metadata.Null()
//   - String: metadata.String("tech")
//   - Int: metadata.Int(2024)
//   - Float: metadata.Float(3.14)
//   - Bool: metadata.Bool(true)
//   - Array: metadata.Array([]metadata.Value{...})
//   - Map: metadata.Map(metadata.Document{...})
//
// Example:
//
//	meta := metadata.Document{
//	    "category":  metadata.String("tech"),
//	    "year":      metadata.Int(2024),
//	    "published": metadata.Bool(true),
//	    "source":    metadata.Map(metadata.Document{"page": metadata.Int(3)}),
//	}
//
// Legacy map[string]any input can be converted with DocumentFromAny.
package metadata
