package domain

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate — общий валидатор структур. Потокобезопасен и кэширует метаданные типов.
var validate = validator.New(validator.WithRequiredStructEnabled())

// validateStruct проверяет struct-теги и оборачивает ошибку в ErrMalformed.
func validateStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// decode разбирает JSON-тело сообщения.
func decode(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
