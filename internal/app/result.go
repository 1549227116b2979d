package app

import (
	"errors"

	"github.com/farmacias-vallenar/backoffice-service/internal/domain"
)

// Result is the uniform outcome of every back-office operation. Callers never see partial
// success: either Success is true and Data holds the committed value, or Error and Code say why not.
type Result struct {
	Success bool             `json:"success"`
	Data    interface{}      `json:"data,omitempty"`
	Error   string           `json:"error,omitempty"`
	Code    domain.ErrorKind `json:"code,omitempty"`
}

func ok(data interface{}) Result {
	return Result{Success: true, Data: data}
}

// fail converts err into a Result. INTERNAL errors never expose their detail.
func fail(err error) Result {
	kind := domain.KindOf(err)
	if kind == "" {
		kind = domain.ErrKindInternal
	}
	message := domain.ErrInternal.Error()
	if kind != domain.ErrKindInternal && err != nil {
		message = err.Error()
	}
	return Result{Error: message, Code: kind}
}

func denied(kind domain.ErrorKind) Result {
	return fail(&domain.Error{Kind: kind})
}

func fromOutcome(outcome domain.MutationOutcome) Result {
	if outcome.Success {
		return ok(outcome.Data)
	}
	err := outcome.Err
	if err == nil {
		err = &domain.Error{Kind: outcome.ErrorKind}
	}
	var kinded *domain.Error
	if !errors.As(err, &kinded) && outcome.ErrorKind != "" {
		err = &domain.Error{Kind: outcome.ErrorKind, Err: err}
	}
	return fail(err)
}
