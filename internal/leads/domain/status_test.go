package domain

import (
	"errors"
	"testing"
)

// legalPairs lists every transition the funnel allows. Anything outside this
// set must be rejected.
var legalPairs = map[Status][]Status{
	StatusNuevo:         {StatusPrecalificado},
	StatusPrecalificado: {StatusAsignado},
	StatusAsignado:      {StatusContactado},
	StatusContactado:    {StatusCita, StatusSeguimiento, StatusPerdido},
	StatusCita:          {StatusSeguimiento, StatusCierre, StatusPerdido},
	StatusSeguimiento:   {StatusCita, StatusCierre, StatusPerdido},
}

func isLegal(current, next Status) bool {
	for _, allowed := range legalPairs[current] {
		if allowed == next {
			return true
		}
	}
	return false
}

func TestValidateTransitionClosure(t *testing.T) {
	for _, current := range All() {
		for _, next := range All() {
			err := ValidateTransition(current, next)
			if isLegal(current, next) {
				if err != nil {
					t.Errorf("ValidateTransition(%s, %s) unexpected error: %v", current, next, err)
				}
				continue
			}

			if err == nil {
				t.Errorf("ValidateTransition(%s, %s) should have been rejected", current, next)
				continue
			}

			var invalid *InvalidTransitionError
			if !errors.As(err, &invalid) {
				t.Errorf("ValidateTransition(%s, %s) returned %T, want *InvalidTransitionError", current, next, err)
				continue
			}
			if invalid.Current != current || invalid.Next != next {
				t.Errorf("InvalidTransitionError carries {%s, %s}, want {%s, %s}",
					invalid.Current, invalid.Next, current, next)
			}
		}
	}
}

func TestSelfTransitionsAreRejected(t *testing.T) {
	for _, status := range All() {
		if err := ValidateTransition(status, status); err == nil {
			t.Errorf("ValidateTransition(%s, %s) should have been rejected", status, status)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, status := range All() {
		want := status == StatusCierre || status == StatusPerdido
		if got := IsTerminal(status); got != want {
			t.Errorf("IsTerminal(%s) = %v, want %v", status, got, want)
		}
	}
}

func TestKnown(t *testing.T) {
	if Known(Status("CONGELADO")) {
		t.Error("Known should reject statuses outside the enum")
	}
	if !Known(StatusNuevo) {
		t.Error("Known should accept NUEVO")
	}
}
