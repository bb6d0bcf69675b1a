// Package models defines the catalog domain types shared by the stores, the metadata client and the UI.
//
// The package contains three groups of types:
//
// 1. Catalog projections built from metadata API responses:
//   - [CatalogItem] : a read-only movie or TV title
//   - [Genre], [Video], [Details] : supporting metadata
//
// 2. Identity resolution:
//   - [Key] : the string identity used to deduplicate and look up titles
//   - [Resolve] : derives a [Key] from a [CatalogItem] (primary id, alternate id, then kind+title)
//   - [Ref] : anything that can be turned into a [Key] ("key or item" arguments)
//
// 3. Persisted records:
//   - [CollectionEntry] : a title captured into a named [CollectionName]
//   - [Rating] : a 1-10 star rating
//   - [Session] : the signed-in user record
package models
