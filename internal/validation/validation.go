// Package validation checks request input against struct tags and reports
// failures per field, keyed by JSON name.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/partner-gateway-service/internal/model"
)

var (
	phonePattern   = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)
	specialPattern = regexp.MustCompile(`[!@#$%^&*(),.?":{}|<>]`)

	validate = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	must := func(tag string, fn validator.Func) {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(fmt.Sprintf("register %s validation: %v", tag, err))
		}
	}
	must("password", func(fl validator.FieldLevel) bool {
		return Password(fl.Field().String()) == nil
	})
	must("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	must("business_type", func(fl validator.FieldLevel) bool {
		return BusinessType(fl.Field().String())
	})
	must("scope", func(fl validator.FieldLevel) bool {
		for _, s := range model.AllScopes() {
			if s == fl.Field().String() {
				return true
			}
		}
		return false
	})
	must("webhook_event", func(fl validator.FieldLevel) bool {
		return model.WebhookEvent(fl.Field().String()).Valid()
	})
	return v
}

// Struct validates s and returns a reason per failing field, or nil.
func Struct(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"request": err.Error()}
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		name := fe.Field()
		if _, seen := fields[name]; seen {
			continue
		}
		fields[name] = message(fe)
	}
	return fields
}

// Password enforces the dashboard password policy.
func Password(pw string) error {
	var upper, lower, digit bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}

	switch {
	case len(pw) < 8:
		return errors.New("Password must be at least 8 characters long")
	case !upper:
		return errors.New("Password must contain at least one uppercase letter")
	case !lower:
		return errors.New("Password must contain at least one lowercase letter")
	case !digit:
		return errors.New("Password must contain at least one number")
	case !specialPattern.MatchString(pw):
		return errors.New("Password must contain at least one special character")
	}
	return nil
}

func BusinessType(s string) bool {
	switch s {
	case model.BusinessTravelAgency, model.BusinessCorporate, model.BusinessReseller,
		model.BusinessPlatform, model.BusinessOther:
		return true
	}
	return false
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "url", "http_url":
		return "must be a valid URL"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at least %s items", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	case "password":
		if err := Password(fmt.Sprint(fe.Value())); err != nil {
			return err.Error()
		}
		return "is not a valid password"
	case "phone":
		return "must be a valid phone number"
	case "business_type":
		return "must be one of: travel_agency, corporate, reseller, platform, other"
	case "scope":
		return "must be one of: " + strings.Join(model.AllScopes(), ", ")
	case "webhook_event":
		return fmt.Sprintf("unknown webhook event %q", fe.Value())
	case "ip|cidr", "ip", "cidr":
		return fmt.Sprintf("%q is not a valid IP address or CIDR range", fe.Value())
	default:
		return "is invalid"
	}
}
