// Package domain provides core business rules for the leads bounded context.
package domain

import "fmt"

// Status is the lifecycle status of a lead in the qualification funnel.
type Status string

const (
	StatusNuevo         Status = "NUEVO"
	StatusPrecalificado Status = "PRECALIFICADO"
	StatusAsignado      Status = "ASIGNADO"
	StatusContactado    Status = "CONTACTADO"
	StatusCita          Status = "CITA"
	StatusSeguimiento   Status = "SEGUIMIENTO"
	StatusCierre        Status = "CIERRE"
	StatusPerdido       Status = "PERDIDO"
)

// allowedTransitions is the single source of truth for status legality.
// A pair must appear here to be legal; self-transitions are not implied.
var allowedTransitions = map[Status][]Status{
	StatusNuevo:         {StatusPrecalificado},
	StatusPrecalificado: {StatusAsignado},
	StatusAsignado:      {StatusContactado},
	StatusContactado:    {StatusCita, StatusSeguimiento, StatusPerdido},
	StatusCita:          {StatusSeguimiento, StatusCierre, StatusPerdido},
	StatusSeguimiento:   {StatusCita, StatusCierre, StatusPerdido},
	StatusCierre:        {},
	StatusPerdido:       {},
}

// InvalidTransitionError reports a status change not present in the
// transition table.
type InvalidTransitionError struct {
	Current Status
	Next    Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot move from %s to %s", e.Current, e.Next)
}

// ValidateTransition checks whether current -> next is a legal status change.
// It is pure and total over the status enum; it performs no I/O. Every
// persisted status write in the system must pass through this check first.
func ValidateTransition(current, next Status) error {
	for _, allowed := range allowedTransitions[current] {
		if allowed == next {
			return nil
		}
	}
	return &InvalidTransitionError{Current: current, Next: next}
}

// IsTerminal returns true when the status has no outgoing transitions.
func IsTerminal(status Status) bool {
	return len(allowedTransitions[status]) == 0
}

// Known returns true when the status is part of the lifecycle enum.
func Known(status Status) bool {
	_, ok := allowedTransitions[status]
	return ok
}

// All returns every status in the lifecycle enum.
func All() []Status {
	return []Status{
		StatusNuevo,
		StatusPrecalificado,
		StatusAsignado,
		StatusContactado,
		StatusCita,
		StatusSeguimiento,
		StatusCierre,
		StatusPerdido,
	}
}
