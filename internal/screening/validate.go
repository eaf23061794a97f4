// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package screening

import (
	"errors"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var simpleEmail = regexp.MustCompile(`\S+@\S+\.\S+`)

// Answers holds the three eligibility answers, each "yes" or "no".
type Answers struct {
	UsedAI    string `json:"used_ai" form:"used_ai" validate:"required,oneof=yes no"`
	LivesInUS string `json:"lives_in_us" form:"lives_in_us" validate:"required,oneof=yes no"`
	IsAdult   string `json:"is_adult" form:"is_adult" validate:"required,oneof=yes no"`
}

// Eligible reports whether every answer is "yes".
func (a Answers) Eligible() bool {
	return a.UsedAI == "yes" && a.LivesInUS == "yes" && a.IsAdult == "yes"
}

// Contact is the contact step input after phone digits were extracted.
type Contact struct {
	Phone string `validate:"required,len=10,numeric"`
	Email string `validate:"omitempty,simpleemail"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("simpleemail", func(fl validator.FieldLevel) bool {
		return simpleEmail.MatchString(fl.Field().String())
	})
	return v
}

// answersError maps a validation failure of Answers to a message ID.
func answersError(err error) string {
	if err == nil {
		return ""
	}
	return MsgAnswerAll
}

// contactError maps a validation failure of Contact to a message ID.
// The phone is reported before the email.
func contactError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		if err != nil {
			return MsgPhoneIncomplete
		}
		return ""
	}

	for _, fe := range verrs {
		if fe.Field() != "Phone" {
			continue
		}
		if fe.Tag() == "required" {
			return MsgPhoneRequired
		}
		return MsgPhoneIncomplete
	}
	return MsgEmailInvalid
}
