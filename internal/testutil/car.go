package testutil

import (
	"time"

	"github.com/roach88/kvorm/internal/meta"
)

// Car is the reference entity used across repository tests. Its id is
// the identifier, color is equality-indexed and manufactureDate is a
// temporal sorted index. It has no prefix, so records live at Car:<id>.
type Car struct {
	ID              *int64
	Color           *string
	EngineType      *string
	Make            *string
	Model           *string
	ManufactureDate *time.Time
}

func (*Car) EntityType() string { return "Car" }

// CarType returns a fresh descriptor for Car.
func CarType() *meta.Type {
	return meta.NewType("Car", func() meta.Entity { return &Car{} },
		meta.Field("id",
			func(c *Car) *int64 { return c.ID },
			func(c *Car, v *int64) { c.ID = v },
			meta.ID()),
		meta.Field("color",
			func(c *Car) *string { return c.Color },
			func(c *Car, v *string) { c.Color = v },
			meta.Index("")),
		meta.Field("engineType",
			func(c *Car) *string { return c.EngineType },
			func(c *Car, v *string) { c.EngineType = v }),
		meta.Field("make",
			func(c *Car) *string { return c.Make },
			func(c *Car, v *string) { c.Make = v }),
		meta.Field("model",
			func(c *Car) *string { return c.Model },
			func(c *Car, v *string) { c.Model = v }),
		meta.Field("manufactureDate",
			func(c *Car) *time.Time { return c.ManufactureDate },
			func(c *Car, v *time.Time) { c.ManufactureDate = v },
			meta.Sorted(""), meta.Temporal()),
	)
}

// CarRegistry returns a registry holding only Car.
func CarRegistry() *meta.Registry {
	return meta.NewRegistry().MustRegister(CarType())
}

// Ptr returns a pointer to v.
func Ptr[V any](v V) *V {
	return &v
}

// Date parses an RFC 3339 timestamp and panics on error.
func Date(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}
