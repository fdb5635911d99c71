// Package meta describes entity types and resolves their storage metadata.
//
// Entity types are registered up front with an explicit descriptor instead
// of being discovered at run time. A descriptor names the type, an optional
// key prefix, a factory for blank instances, and an ordered list of
// properties. Each property carries its accessor pair and its markers:
//
//	carType := meta.NewType("Car", func() meta.Entity { return &Car{} },
//	    meta.Field("id", func(c *Car) *int64 { return &c.ID }, func(c *Car, v *int64) { c.ID = deref(v) }, meta.ID()),
//	    meta.Field("color", func(c *Car) *string { return c.Color }, func(c *Car, v *string) { c.Color = v }, meta.Index("")),
//	    meta.Field("manufactureDate", getDate, setDate, meta.Sorted(""), meta.Temporal()),
//	)
//
// The Registry answers three questions about a registered type: its key
// prefix, its single identifier property, and its index descriptors in
// declaration order. Identifier cardinality is checked at resolution time,
// so a malformed type can be registered but never resolved.
package meta
