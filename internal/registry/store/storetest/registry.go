package storetest

import (
	"strings"

	"registry/internal/registry/custo"
)

// definition extends the built-in customization with numeric contextual fields.
const definition = `
BiographicData:
  type: object
  properties:
    firstName: {type: string}
    lastName: {type: string}
    dateOfBirth: {type: string, format: date}
    gender: {type: string, enum: [M, F, O]}
    nationality: {type: string, maxLength: 3, default: USA}
  required: [firstName]
ContextualData:
  type: object
  properties:
    operator: {type: string}
    enrollmentDate: {type: string, format: date-time}
    weight: {type: number, format: float}
    height: {type: number, format: double}
`

// Registry returns the customization the suite runs with. Backends that need a
// registry at construction time must be built with it.
func Registry() *custo.Registry {
	reg, err := custo.Parse(strings.NewReader(definition))
	if err != nil {
		panic("storetest: invalid customization: " + err.Error())
	}
	return reg
}
