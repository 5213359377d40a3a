package memoservice

import (
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/almanac/internal/apperr"
	"github.com/starford/almanac/internal/models"
)

var paletteValues = func() []any {
	out := make([]any, len(models.Palette))
	for i, c := range models.Palette {
		out[i] = c
	}
	return out
}()

// validateWindow checks a trimmed title and colour against the other windows
// of the user. selfID is skipped in the uniqueness check.
func validateWindow(title, color string, existing []models.Window, selfID string) error {
	err := validation.Errors{
		"title": validation.Validate(title,
			validation.Required,
			validation.RuneLength(1, models.MaxTitleLength),
			validation.By(singleLine),
			validation.By(uniqueTitle(existing, selfID)),
		),
		"color": validation.Validate(color, validation.Required, validation.In(paletteValues...)),
	}.Filter()
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalid, err)
	}
	return nil
}

func singleLine(value any) error {
	s, _ := value.(string)
	if strings.ContainsAny(s, "\r\n") {
		return errors.New("must be a single line")
	}
	return nil
}

func uniqueTitle(existing []models.Window, selfID string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s == models.AllWindow().Title {
			return errors.New("is reserved")
		}
		for _, w := range existing {
			if w.ID != selfID && w.Title == s {
				return errors.New("is already used")
			}
		}
		return nil
	}
}

func validatePlan(p models.Plan) error {
	err := validation.ValidateStruct(&p,
		validation.Field(&p.Title, validation.Required, validation.RuneLength(1, 200)),
		validation.Field(&p.Date, validation.Required),
		validation.Field(&p.EndDate, validation.By(func(any) error {
			if !p.EndDate.IsZero() && p.EndDate.Before(p.Date) {
				return errors.New("must not be before date")
			}
			return nil
		})),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalid, err)
	}
	return nil
}
