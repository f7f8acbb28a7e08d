package apperror

import (
	"errors"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuth
	KindUpstream
	KindNotFound
	// KindPartial is a request that committed some of its writes and failed others.
	// Its message is safe to show; it carries counts, not causes.
	KindPartial
)

func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindAuth:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (k Kind) Title() string {
	switch k {
	case KindValidation:
		return "Solicitud inválida"
	case KindAuth:
		return "Credenciales de autenticación inválidas"
	case KindUpstream:
		return "Error en un servicio externo"
	case KindNotFound:
		return "No encontrado"
	case KindPartial:
		return "Procesamiento parcial"
	default:
		return "Error interno del servidor"
	}
}

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Message != "" && e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	}
	return e.Kind.Title()
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(message string, err error) *Error { return New(KindValidation, message, err) }
func Auth(message string, err error) *Error       { return New(KindAuth, message, err) }
func Upstream(message string, err error) *Error   { return New(KindUpstream, message, err) }
func NotFound(message string) *Error              { return New(KindNotFound, message, nil) }
func Internal(err error) *Error                   { return New(KindInternal, "", err) }
func Partial(message string) *Error               { return New(KindPartial, message, nil) }

// KindOf reports the kind of the first *Error in err's chain, KindInternal otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// PublicMessage is what may be shown to a caller. Internal and upstream causes are never exposed.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return KindInternal.Title()
	}
	switch e.Kind {
	case KindInternal, KindUpstream:
		return e.Kind.Title()
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.Title()
}
