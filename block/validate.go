package block

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
			return name
		})
	})
	return validate
}

// Validate checks every numeric field against its allowed range and
// returns one message per violation, in declared field order. It never
// blocks a save or a generation; callers only show the messages.
func Validate(cfg Config) []string {
	err := getValidator().Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		lo, hi := fieldRange(fe.StructField())
		msgs = append(msgs, fmt.Sprintf("%s must be between %s and %s", fe.Field(), lo, hi))
	}
	return msgs
}

// fieldRange reads the gte/lte bounds from a Config field's validate tag.
func fieldRange(name string) (lo, hi string) {
	f, ok := reflect.TypeOf(Config{}).FieldByName(name)
	if !ok {
		return "", ""
	}
	for _, rule := range strings.Split(f.Tag.Get("validate"), ",") {
		key, value, _ := strings.Cut(rule, "=")
		switch key {
		case "gte":
			lo = value
		case "lte":
			hi = value
		}
	}
	return lo, hi
}
