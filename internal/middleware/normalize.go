package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt"
	"github.com/ledgerline/ledgerlog/internal/pkg/apperrors"
	"gorm.io/gorm"
)

// Normalize converts errors raised by binding, token parsing and data access into
// *apperrors.AppError. Errors it does not recognize pass through untouched.
func Normalize(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperrors.As(err); ok {
		return err
	}

	var (
		verrs   validator.ValidationErrors
		syntax  *json.SyntaxError
		typeErr *json.UnmarshalTypeError
		numErr  *strconv.NumError
		jwtErr  *jwt.ValidationError
	)
	switch {
	case errors.As(err, &verrs):
		return apperrors.NewValidation(validationMessage(verrs), err)
	case errors.As(err, &syntax):
		return apperrors.NewBadRequest(fmt.Sprintf("malformed JSON at offset %d", syntax.Offset), err)
	case errors.As(err, &typeErr):
		return apperrors.NewValidation(fmt.Sprintf("field %q must be %s", typeErr.Field, typeErr.Type), err)
	case errors.As(err, &numErr):
		return apperrors.NewCast(fmt.Sprintf("invalid value %q", numErr.Num), err)
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return apperrors.NewBadRequest("request body is empty or truncated", err)
	case errors.As(err, &jwtErr):
		if jwtErr.Errors&jwt.ValidationErrorExpired != 0 {
			return apperrors.NewUnauthorized("token expired", err)
		}
		return apperrors.NewUnauthorized("invalid token", err)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperrors.NewNotFound("resource not found")
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperrors.NewDuplicateKey("resource already exists", err)
	case errors.Is(err, gorm.ErrInvalidValue), errors.Is(err, gorm.ErrInvalidField):
		return apperrors.NewCast("invalid identifier", err)
	}
	return err
}

func validationMessage(verrs validator.ValidationErrors) string {
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
