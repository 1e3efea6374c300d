// Package partitionkey models partition key values: the values that route a
// document to a storage partition and, together with a document id, identify it.
//
// A [Key] is an ordered sequence of [Value] components. Each component is one
// of Undefined, Null, Boolean, Number or String. The zero Key is [None].
//
// # Wire form
//
// Keys have one canonical text form, a JSON array, which is what stores persist
// and what [TryParse] reads back:
//
//	None                 []
//	Null                 [null]
//	Undefined            [{}]
//	Bool(true)           [true]
//	Number(123.456)      [123.456]
//	String("tenant-1")   ["tenant-1"]
//	composite            ["tenant-1",42]
//
// The wire form is part of the stored data format and does not change between
// releases.
//
// # Ordering
//
// [Compare] is lexicographic over components. Components of different kinds
// rank Undefined < Null < Boolean < Number < String and are never equal, so
// Bool(false) and Number(0) are distinct keys. [Equal], [Compare] and [Encode]
// always agree, and [Hash] is derived from the encoding.
package partitionkey
